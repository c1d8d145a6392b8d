package domain

import (
	"encoding/json"
	"time"
)

// Run is the trace record of one request. It never carries query or answer text.
type Run struct {
	RunID        string        `json:"run_id"`
	QueryID      string        `json:"query_id"`
	ConnectionID string        `json:"connection_id,omitempty"`
	Status       RunStatus     `json:"status"`
	Source       RoutingSource `json:"source,omitempty"`
	Roles        []RoleName    `json:"roles,omitempty"`
	Degraded     bool          `json:"degraded"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Error        ErrorKind     `json:"error,omitempty"`
}

// Event is a persisted stage event of a run.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    TraceEventType  `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
