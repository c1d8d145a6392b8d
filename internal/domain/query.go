package domain

import (
	"time"

	"github.com/google/uuid"
)

// Query is a single user question. It is immutable once created.
type Query struct {
	ID         string    `json:"query_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewQuery creates a query stamped with the current time.
func NewQuery(text string) Query {
	return Query{
		ID:         "q_" + uuid.New().String()[:8],
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// RoutingDecision is the set of expert roles selected for a query.
// Roles is never empty and holds no duplicates.
type RoutingDecision struct {
	Roles     []RoleName    `json:"roles"`
	Rationale string        `json:"rationale,omitempty"`
	Source    RoutingSource `json:"source"`
}

// ResponderResult is the outcome of one role's responder call.
type ResponderResult struct {
	Role    RoleName      `json:"role"`
	Text    string        `json:"text,omitempty"`
	OK      bool          `json:"ok"`
	Error   ErrorKind     `json:"error,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// Successful returns the OK results, preserving order.
func Successful(results []ResponderResult) []ResponderResult {
	var ok []ResponderResult
	for _, r := range results {
		if r.OK {
			ok = append(ok, r)
		}
	}
	return ok
}

// AggregatedAnswer is the final answer delivered to the client.
type AggregatedAnswer struct {
	Text      string     `json:"text"`
	UsedRoles []RoleName `json:"used_roles"`
	Degraded  bool       `json:"degraded"`
}
