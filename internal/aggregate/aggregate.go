// Package aggregate turns expert results into a single answer.
package aggregate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/prompt"
)

// Aggregator enhances a single answer or synthesizes several.
type Aggregator struct {
	responder llm.Responder
	timeout   time.Duration
}

// New creates an aggregator backed by responder.
func New(responder llm.Responder, timeout time.Duration) *Aggregator {
	return &Aggregator{responder: responder, timeout: timeout}
}

// Aggregate applies the aggregation policy to results:
//   - no successful result is an error;
//   - one successful result is enhanced, falling back to the raw text;
//   - several are synthesized in result order, and failure is an error.
//
// rationale is the routing rationale shown to the synthesizer.
func (a *Aggregator) Aggregate(ctx context.Context, q domain.Query, rationale string, results []domain.ResponderResult) (domain.AggregatedAnswer, error) {
	ok := domain.Successful(results)

	switch len(ok) {
	case 0:
		return domain.AggregatedAnswer{}, fmt.Errorf("%w: no expert produced an answer", domain.ErrAggregationFailure)

	case 1:
		only := ok[0]
		answer := domain.AggregatedAnswer{UsedRoles: []domain.RoleName{only.Role}}
		text, err := a.generate(ctx, prompt.Enhance(q.Text, only.Text))
		if err != nil {
			log.Printf("WARN: enhancement failed for query %s, using %s answer as is: %v", q.ID, only.Role, err)
			answer.Text = only.Text
			answer.Degraded = true
			return answer, nil
		}
		answer.Text = text
		return answer, nil

	default:
		answers := make([]prompt.ExpertAnswer, 0, len(ok))
		roles := make([]domain.RoleName, 0, len(ok))
		for _, r := range ok {
			answers = append(answers, prompt.ExpertAnswer{Role: r.Role, Text: r.Text})
			roles = append(roles, r.Role)
		}
		text, err := a.generate(ctx, prompt.Synthesize(q.Text, rationale, answers))
		if err != nil {
			return domain.AggregatedAnswer{}, fmt.Errorf("%w: synthesis: %w", domain.ErrAggregationFailure, err)
		}
		return domain.AggregatedAnswer{Text: text, UsedRoles: roles}, nil
	}
}

func (a *Aggregator) generate(ctx context.Context, p string) (string, error) {
	if a.responder == nil {
		return "", domain.ErrNoResponder
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	text, err := a.responder.Generate(callCtx, p)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyOutput
	}
	return text, nil
}
