package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/conclave/internal/domain"
)

// TraceStore persists run traces. Writes are best-effort.
type TraceStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRunCompleted(ctx context.Context, run *domain.Run) error
	CreateEvent(ctx context.Context, event *domain.Event) error
}

// tracer records one run. A nil store makes every method a no-op.
type tracer struct {
	store TraceStore
	run   *domain.Run
}

func newTracer(ctx context.Context, store TraceStore, q domain.Query, connID string) *tracer {
	t := &tracer{store: store}
	if store == nil {
		return t
	}
	t.run = &domain.Run{
		RunID:        "run_" + uuid.New().String()[:8],
		QueryID:      q.ID,
		ConnectionID: connID,
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := store.CreateRun(context.WithoutCancel(ctx), t.run); err != nil {
		log.Printf("WARN: failed to record run for query %s: %v", q.ID, err)
		t.store = nil
		return t
	}
	t.event(ctx, domain.TraceRunStarted, map[string]interface{}{"query_id": q.ID})
	return t
}

// RunID returns the trace run ID, or "" when tracing is off.
func (t *tracer) RunID() string {
	if t.store == nil {
		return ""
	}
	return t.run.RunID
}

func (t *tracer) event(ctx context.Context, eventType domain.TraceEventType, payload interface{}) {
	if t.store == nil {
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("WARN: failed to marshal %s payload: %v", eventType, err)
		return
	}
	ev := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   t.run.RunID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}
	if err := t.store.CreateEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("WARN: failed to record %s for %s: %v", eventType, t.run.RunID, err)
	}
}

func (t *tracer) routed(ctx context.Context, d domain.RoutingDecision) {
	if t.store == nil {
		return
	}
	t.run.Source = d.Source
	t.run.Roles = d.Roles
	t.event(ctx, domain.TraceRouted, map[string]interface{}{"roles": d.Roles, "source": d.Source})
}

type stageResult struct {
	Role      domain.RoleName  `json:"role"`
	OK        bool             `json:"ok"`
	Error     domain.ErrorKind `json:"error,omitempty"`
	LatencyMs int64            `json:"latency_ms"`
}

func (t *tracer) dispatched(ctx context.Context, results []domain.ResponderResult) {
	if t.store == nil {
		return
	}
	summary := make([]stageResult, 0, len(results))
	for _, r := range results {
		summary = append(summary, stageResult{Role: r.Role, OK: r.OK, Error: r.Error, LatencyMs: r.Latency.Milliseconds()})
	}
	t.event(ctx, domain.TraceDispatched, map[string]interface{}{"results": summary})
}

func (t *tracer) finish(ctx context.Context, status domain.RunStatus, degraded bool, kind domain.ErrorKind) {
	if t.store == nil {
		return
	}
	now := time.Now()
	t.run.Status = status
	t.run.Degraded = degraded
	t.run.Error = kind
	t.run.EndedAt = &now

	eventType := domain.TraceRunDone
	switch status {
	case domain.RunStatusFailed:
		eventType = domain.TraceRunFailed
	case domain.RunStatusCancelled:
		eventType = domain.TraceRunCancelled
	}
	t.event(ctx, eventType, map[string]interface{}{"degraded": degraded, "error": kind})

	if err := t.store.UpdateRunCompleted(context.WithoutCancel(ctx), t.run); err != nil {
		log.Printf("WARN: failed to complete run %s: %v", t.run.RunID, err)
	}
}
