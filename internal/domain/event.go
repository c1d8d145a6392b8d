package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// StreamEvent is a single client-facing event of a request's stream.
type StreamEvent struct {
	Type      EventType
	Content   string
	Timestamp time.Time
}

type wireEvent struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Timestamp float64   `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, content string) StreamEvent {
	return StreamEvent{Type: t, Content: content, Timestamp: time.Now()}
}

// IsTerminal reports whether no further events may follow this one.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// MarshalJSON encodes the event as {type, content, timestamp} with the
// timestamp in fractional seconds since the Unix epoch.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:      e.Type,
		Content:   e.Content,
		Timestamp: float64(e.Timestamp.UnixMicro()) / 1e6,
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case EventStatus, EventChunk, EventComplete, EventError:
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	sec, frac := math.Modf(w.Timestamp)
	e.Type = w.Type
	e.Content = w.Content
	e.Timestamp = time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
	return nil
}
