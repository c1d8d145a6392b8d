// Package router selects the expert roles that should answer a query.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/prompt"
)

// KeywordRationale is the rationale recorded for rule-based decisions.
const KeywordRationale = "Keyword-based fallback routing"

// Router classifies queries with a model and falls back to ordered rules.
type Router struct {
	classifier llm.Responder
	timeout    time.Duration
	rules      []Rule
	experts    []domain.RoleName
	fallback   domain.RoleName
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier enables model classification with a per-call timeout.
func WithClassifier(r llm.Responder, timeout time.Duration) Option {
	return func(rt *Router) {
		rt.classifier = r
		rt.timeout = timeout
	}
}

// WithExperts restricts the roles a classifier reply may resolve to.
func WithExperts(roles ...domain.RoleName) Option {
	return func(rt *Router) {
		rt.experts = roles
	}
}

// New creates a router with the given keyword rules.
func New(rules []Rule, opts ...Option) *Router {
	r := &Router{
		rules:    rules,
		experts:  domain.ExpertRoles,
		fallback: domain.RoleGeneral,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns a non-empty routing decision. It never fails.
func (r *Router) Route(ctx context.Context, q domain.Query) domain.RoutingDecision {
	if r.classifier != nil {
		roles, rationale, err := r.classify(ctx, q.Text)
		if err == nil {
			return domain.RoutingDecision{
				Roles:     roles,
				Rationale: rationale,
				Source:    domain.RoutingClassified,
			}
		}
		log.Printf("WARN: query %s: %v, using keyword routing", q.ID, err)
	}
	return r.KeywordRoute(ctx, q.Text)
}

func (r *Router) classify(ctx context.Context, text string) ([]domain.RoleName, string, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reply, err := r.classifier.Generate(callCtx, prompt.Classifier(text))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrClassificationFailure, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrClassificationFailure, domain.ErrEmptyOutput)
	}

	roles, rationale, err := parseReply(reply, r.experts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrClassificationFailure, err)
	}
	return roles, rationale, nil
}

// KeywordRoute evaluates the rules in order. Every matching rule activates
// its role; when none match the general role is used.
func (r *Router) KeywordRoute(ctx context.Context, text string) domain.RoutingDecision {
	var roles []domain.RoleName
	seen := make(map[domain.RoleName]bool)
	for _, rule := range r.rules {
		if seen[rule.Role] {
			continue
		}
		ok, err := rule.When.Match(ctx, text)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Printf("WARN: routing rule for %s failed: %v", rule.Role, err)
			continue
		}
		if ok {
			seen[rule.Role] = true
			roles = append(roles, rule.Role)
		}
	}
	if len(roles) == 0 {
		roles = []domain.RoleName{r.fallback}
	}
	return domain.RoutingDecision{
		Roles:     roles,
		Rationale: KeywordRationale,
		Source:    domain.RoutingKeywordFallback,
	}
}
