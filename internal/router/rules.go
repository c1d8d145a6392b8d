package router

import (
	"context"
	"strings"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/policy"
)

// Predicate decides whether a rule applies to a query.
type Predicate interface {
	Match(ctx context.Context, text string) (bool, error)
}

// Rule activates Role when When matches. Rules are evaluated in order.
type Rule struct {
	Role domain.RoleName
	When Predicate
}

// Keywords matches when the lower-cased query contains any of its terms.
type Keywords []string

// Match implements Predicate.
func (k Keywords) Match(_ context.Context, text string) (bool, error) {
	lower := strings.ToLower(text)
	for _, term := range k {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true, nil
		}
	}
	return false, nil
}

// PolicyMatch matches when the routing policy selects Role.
type PolicyMatch struct {
	Engine *policy.Engine
	Role   domain.RoleName
}

// Match implements Predicate.
func (p PolicyMatch) Match(ctx context.Context, text string) (bool, error) {
	roles, err := p.Engine.MatchedRoles(ctx, text)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if domain.RoleName(r) == p.Role {
			return true, nil
		}
	}
	return false, nil
}

// KeywordRules builds rules from a role → trigger terms table. Roles are
// emitted in the canonical expert order; roles missing from the table are skipped.
func KeywordRules(table map[domain.RoleName][]string) []Rule {
	var rules []Rule
	for _, role := range domain.ExpertRoles {
		terms, ok := table[role]
		if !ok || len(terms) == 0 {
			continue
		}
		rules = append(rules, Rule{Role: role, When: Keywords(terms)})
	}
	return rules
}

// PolicyRules builds one policy-backed rule per expert role.
func PolicyRules(engine *policy.Engine) []Rule {
	rules := make([]Rule, 0, len(domain.ExpertRoles))
	for _, role := range domain.ExpertRoles {
		rules = append(rules, Rule{Role: role, When: PolicyMatch{Engine: engine, Role: role}})
	}
	return rules
}
