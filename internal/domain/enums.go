// Package domain defines the core domain models for the query orchestrator.
package domain

// RoleName identifies a responder role, e.g. "finance_expert".
type RoleName string

const (
	RoleFinance   RoleName = "finance_expert"
	RoleTechnical RoleName = "technical_expert"
	RoleGeneral   RoleName = "general_expert"

	// Infrastructure roles. They never appear in a RoutingDecision.
	RoleClassifier RoleName = "router"
	RoleAggregator RoleName = "aggregator"
	RoleFallback   RoleName = "fallback"
)

// ExpertRoles lists the routable roles in their canonical order.
var ExpertRoles = []RoleName{RoleFinance, RoleTechnical, RoleGeneral}

// AllRoles lists every role a registry is expected to serve.
var AllRoles = []RoleName{RoleClassifier, RoleFinance, RoleTechnical, RoleGeneral, RoleAggregator, RoleFallback}

// IsExpert reports whether the role may be selected by the router.
func (r RoleName) IsExpert() bool {
	for _, e := range ExpertRoles {
		if r == e {
			return true
		}
	}
	return false
}

// RoutingSource records which path produced a routing decision.
type RoutingSource string

const (
	RoutingClassified      RoutingSource = "classified"
	RoutingKeywordFallback RoutingSource = "keyword-fallback"
)

// EventType is the type of a client-facing stream event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// SessionState is the state of a streaming session.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionProcessing
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Mode describes how answers are produced.
type Mode string

const (
	ModeMultiExpert Mode = "multi-expert"
	ModeSingleModel Mode = "single-model"
	ModeFallback    Mode = "fallback"
)

// StatusText is the human readable status line sent before an answer is streamed.
func (m Mode) StatusText() string {
	switch m {
	case ModeMultiExpert:
		return "Processing with multi-expert system..."
	case ModeFallback, ModeSingleModel:
		return "Falling back to single model..."
	default:
		return string(m)
	}
}

// RunStatus represents the status of a traced run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusDone      RunStatus = "DONE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED" // client went away mid-request
)

// TraceEventType is the type of a persisted stage event.
type TraceEventType string

const (
	TraceRunStarted      TraceEventType = "run_started"
	TraceRouted          TraceEventType = "routed"
	TraceDispatched      TraceEventType = "dispatched"
	TraceAggregated      TraceEventType = "aggregated"
	TraceFallbackStarted TraceEventType = "fallback_started"
	TraceStreamed        TraceEventType = "streamed"
	TraceRunDone         TraceEventType = "run_done"
	TraceRunFailed       TraceEventType = "run_failed"
	TraceRunCancelled    TraceEventType = "run_cancelled"
)
