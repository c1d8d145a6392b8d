package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

// Session is the per-connection request state. At most one request is in
// flight per session.
type Session struct {
	ConnectionID string

	mu           sync.Mutex
	rejected     int
	state        atomic.Int32
	lastActivity atomic.Int64
}

// NewSession creates an idle session.
func NewSession(connectionID string) *Session {
	s := &Session{ConnectionID: connectionID}
	s.Touch()
	return s
}

// TryBegin moves the session from Idle to Processing. It reports false when
// a request is already in flight; the refused message is counted until
// TakeRejected collects it.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == domain.SessionProcessing {
		s.rejected++
		return false
	}
	s.state.Store(int32(domain.SessionProcessing))
	s.Touch()
	return true
}

// TakeRejected returns and resets the number of messages refused since the
// last call.
func (s *Session) TakeRejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.rejected
	s.rejected = 0
	return n
}

// End returns the session to Idle. It reports false, leaving the session
// Processing, while refused messages are still waiting to be answered.
func (s *Session) End() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected > 0 {
		return false
	}
	s.state.Store(int32(domain.SessionIdle))
	s.Touch()
	return true
}

// State returns the current state.
func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

// Touch records activity now.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last recorded activity.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}
