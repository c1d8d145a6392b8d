// Package pipeline supervises a request through routing, dispatch,
// aggregation and streaming, falling back to a single model on failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/stream"
)

// Router selects expert roles for a query.
type Router interface {
	Route(ctx context.Context, q domain.Query) domain.RoutingDecision
}

// Dispatcher invokes the routed experts.
type Dispatcher interface {
	Dispatch(ctx context.Context, q domain.Query, decision domain.RoutingDecision) []domain.ResponderResult
}

// Aggregator combines expert results into one answer.
type Aggregator interface {
	Aggregate(ctx context.Context, q domain.Query, rationale string, results []domain.ResponderResult) (domain.AggregatedAnswer, error)
}

// Stage is a state of the per-request state machine.
type Stage string

const (
	StageRouting     Stage = "routing"
	StageDispatching Stage = "dispatching"
	StageAggregating Stage = "aggregating"
	StageFallback    Stage = "fallback_single_model"
	StageStreaming   Stage = "streaming"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Outcome summarises a finished request.
type Outcome struct {
	RunID   string                  `json:"run_id,omitempty"`
	Answer  domain.AggregatedAnswer `json:"answer"`
	Routing *domain.RoutingDecision `json:"routing,omitempty"`
	Mode    domain.Mode             `json:"mode"`
	Stage   Stage                   `json:"stage"`
}

// Pipeline runs queries end to end.
type Pipeline struct {
	router      Router
	dispatcher  Dispatcher
	aggregator  Aggregator
	fallback    llm.Responder
	emitter     *stream.Emitter
	store       TraceStore
	multiExpert bool
	timeout     time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTraceStore enables run tracing.
func WithTraceStore(store TraceStore) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithMultiExpert toggles the multi-expert path. When off every request
// goes straight to the fallback model.
func WithMultiExpert(enabled bool) Option {
	return func(p *Pipeline) {
		p.multiExpert = enabled
	}
}

// WithFallbackTimeout bounds the fallback call.
func WithFallbackTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// New creates a pipeline. The multi-expert path is on by default.
func New(router Router, dispatcher Dispatcher, aggregator Aggregator, fallback llm.Responder, emitter *stream.Emitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		router:      router,
		dispatcher:  dispatcher,
		aggregator:  aggregator,
		fallback:    fallback,
		emitter:     emitter,
		multiExpert: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mode reports how answers are produced.
func (p *Pipeline) Mode() domain.Mode {
	if p.multiExpert {
		return domain.ModeMultiExpert
	}
	return domain.ModeSingleModel
}

// Run answers q, writing its events into out. Every request that is not
// cancelled ends with exactly one Complete or one Error event. Run never
// closes out.
func (p *Pipeline) Run(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) Outcome {
	tr := newTracer(ctx, p.store, q, connID)
	outcome := Outcome{RunID: tr.RunID()}

	if p.multiExpert {
		answer, decision, err := p.orchestrate(ctx, q, tr)
		outcome.Routing = decision
		if err == nil {
			outcome.Answer = answer
			outcome.Mode = domain.ModeMultiExpert
			outcome.Stage = StageStreaming
			if err := p.deliver(ctx, out, domain.ModeMultiExpert, answer.Text); err != nil {
				return p.cancelled(ctx, tr, outcome, err)
			}
			tr.event(ctx, domain.TraceStreamed, map[string]interface{}{"mode": domain.ModeMultiExpert})
			tr.finish(ctx, domain.RunStatusDone, answer.Degraded, domain.ErrorKindNone)
			outcome.Stage = StageDone
			return outcome
		}
		if ctx.Err() != nil {
			return p.cancelled(ctx, tr, outcome, ctx.Err())
		}
		log.Printf("WARN: query %s: %v, falling back to single model", q.ID, err)
	}

	outcome.Mode = domain.ModeFallback
	outcome.Stage = StageFallback
	tr.event(ctx, domain.TraceFallbackStarted, map[string]interface{}{"model": p.fallbackModel()})

	text, err := p.streamFallback(ctx, out, q)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx, tr, outcome, ctx.Err())
		}
		log.Printf("ERROR: query %s: %v", q.ID, err)
		outcome.Stage = StageFailed
		if sendErr := p.emitter.Fail(ctx, out, "Error: "+err.Error()); sendErr != nil {
			return p.cancelled(ctx, tr, outcome, sendErr)
		}
		tr.finish(ctx, domain.RunStatusFailed, true, domain.ErrorKindFallback)
		return outcome
	}

	if err := p.emitter.Complete(ctx, out, text); err != nil {
		return p.cancelled(ctx, tr, outcome, err)
	}
	outcome.Answer = domain.AggregatedAnswer{Text: text, Degraded: true}
	outcome.Stage = StageDone
	tr.event(ctx, domain.TraceStreamed, map[string]interface{}{"mode": domain.ModeFallback})
	tr.finish(ctx, domain.RunStatusDone, true, domain.ErrorKindNone)
	return outcome
}

// Answer runs q without streaming. The error wraps ErrFallbackFailure when
// every path failed.
func (p *Pipeline) Answer(ctx context.Context, q domain.Query) (Outcome, error) {
	tr := newTracer(ctx, p.store, q, "")
	outcome := Outcome{RunID: tr.RunID()}

	if p.multiExpert {
		answer, decision, err := p.orchestrate(ctx, q, tr)
		outcome.Routing = decision
		if err == nil {
			outcome.Answer = answer
			outcome.Mode = domain.ModeMultiExpert
			outcome.Stage = StageDone
			tr.finish(ctx, domain.RunStatusDone, answer.Degraded, domain.ErrorKindNone)
			return outcome, nil
		}
		if ctx.Err() != nil {
			p.cancelled(ctx, tr, outcome, ctx.Err())
			return outcome, ctx.Err()
		}
		log.Printf("WARN: query %s: %v, falling back to single model", q.ID, err)
	}

	outcome.Mode = domain.ModeFallback
	tr.event(ctx, domain.TraceFallbackStarted, map[string]interface{}{"model": p.fallbackModel()})

	text, err := p.generateFallback(ctx, q)
	if err != nil {
		outcome.Stage = StageFailed
		tr.finish(ctx, domain.RunStatusFailed, true, domain.ErrorKindFallback)
		return outcome, err
	}
	outcome.Answer = domain.AggregatedAnswer{Text: text, Degraded: true}
	outcome.Stage = StageDone
	tr.finish(ctx, domain.RunStatusDone, true, domain.ErrorKindNone)
	return outcome, nil
}

// orchestrate runs routing, dispatch and aggregation. A panic in any stage is
// reported as an error.
func (p *Pipeline) orchestrate(ctx context.Context, q domain.Query, tr *tracer) (answer domain.AggregatedAnswer, decision *domain.RoutingDecision, err error) {
	stage := StageRouting
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: query %s: panic during %s: %v", q.ID, stage, r)
			err = fmt.Errorf("panic during %s: %v", stage, r)
		}
	}()

	d := p.router.Route(ctx, q)
	decision = &d
	tr.routed(ctx, d)
	log.Printf("Query %s routed to %v (%s)", q.ID, d.Roles, d.Source)

	stage = StageDispatching
	results := p.dispatcher.Dispatch(ctx, q, d)
	tr.dispatched(ctx, results)
	if err := ctx.Err(); err != nil {
		return domain.AggregatedAnswer{}, decision, err
	}

	stage = StageAggregating
	answer, err = p.aggregator.Aggregate(ctx, q, d.Rationale, results)
	if err != nil {
		return domain.AggregatedAnswer{}, decision, err
	}
	tr.event(ctx, domain.TraceAggregated, map[string]interface{}{"used_roles": answer.UsedRoles, "degraded": answer.Degraded})
	return answer, decision, nil
}

func (p *Pipeline) deliver(ctx context.Context, out chan<- domain.StreamEvent, mode domain.Mode, text string) error {
	if err := p.emitter.Status(ctx, out, mode); err != nil {
		return err
	}
	return p.emitter.Answer(ctx, out, text)
}

// streamFallback forwards the fallback model's native stream as chunks. The
// fallback Status goes out with the first chunk, so a fallback that fails
// before producing output leaves only the caller's Error on the wire.
func (p *Pipeline) streamFallback(ctx context.Context, out chan<- domain.StreamEvent, q domain.Query) (string, error) {
	if p.fallback == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, domain.ErrNoResponder)
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	tokens, err := p.fallback.GenerateStream(callCtx, q.Text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, err)
	}
	text, err := p.emitter.Forward(callCtx, out, domain.ModeFallback, tokens)
	if err != nil {
		return text, fmt.Errorf("%w: %w", domain.ErrFallbackFailure, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, domain.ErrEmptyOutput)
	}
	return text, nil
}

func (p *Pipeline) generateFallback(ctx context.Context, q domain.Query) (string, error) {
	if p.fallback == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, domain.ErrNoResponder)
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	text, err := p.fallback.Generate(callCtx, q.Text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrFallbackFailure, domain.ErrEmptyOutput)
	}
	return text, nil
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) fallbackModel() string {
	if p.fallback == nil {
		return ""
	}
	return p.fallback.Model()
}

func (p *Pipeline) cancelled(ctx context.Context, tr *tracer, outcome Outcome, err error) Outcome {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("WARN: run %s stopped: %v", outcome.RunID, err)
	}
	outcome.Stage = StageFailed
	tr.finish(ctx, domain.RunStatusCancelled, outcome.Answer.Degraded, domain.ErrorKindCancelled)
	return outcome
}
