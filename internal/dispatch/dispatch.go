// Package dispatch fans a query out to the routed expert responders.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/prompt"
)

// Resolver looks up the responder serving a role.
type Resolver interface {
	Get(role domain.RoleName) (llm.Responder, bool)
}

// Dispatcher invokes one responder per routed role concurrently.
type Dispatcher struct {
	resolver Resolver
	timeout  time.Duration
	limit    int
}

// New creates a dispatcher. timeout bounds each call; limit caps concurrent
// calls, with zero meaning unbounded.
func New(resolver Resolver, timeout time.Duration, limit int) *Dispatcher {
	return &Dispatcher{resolver: resolver, timeout: timeout, limit: limit}
}

// Dispatch returns one result per role in decision.Roles, in the same order.
// It returns once every call has succeeded, failed or timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, q domain.Query, decision domain.RoutingDecision) []domain.ResponderResult {
	results := make([]domain.ResponderResult, len(decision.Roles))

	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for i, role := range decision.Roles {
		g.Go(func() error {
			results[i] = d.call(ctx, role, q)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) call(ctx context.Context, role domain.RoleName, q domain.Query) (res domain.ResponderResult) {
	start := time.Now()
	res.Role = role
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: responder for %s panicked: %v", role, r)
			res = failed(role, fmt.Errorf("%w: panic: %v", domain.ErrResponderFailure, r), start)
		}
	}()

	responder, ok := d.resolver.Get(role)
	if !ok {
		return failed(role, fmt.Errorf("%s: %w", role, domain.ErrNoResponder), start)
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	text, err := responder.Generate(callCtx, prompt.Expert(role, q.Text))
	if err != nil {
		log.Printf("WARN: %s (%s) failed for query %s: %v", role, responder.Model(), q.ID, err)
		return failed(role, err, start)
	}
	if strings.TrimSpace(text) == "" {
		log.Printf("WARN: %s (%s) returned empty output for query %s", role, responder.Model(), q.ID)
		return failed(role, domain.ErrEmptyOutput, start)
	}

	return domain.ResponderResult{
		Role:    role,
		Text:    text,
		OK:      true,
		Latency: time.Since(start),
	}
}

func failed(role domain.RoleName, err error, start time.Time) domain.ResponderResult {
	return domain.ResponderResult{
		Role:    role,
		OK:      false,
		Error:   domain.KindOf(err),
		Detail:  err.Error(),
		Latency: time.Since(start),
	}
}
