// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/halcyon-tui/internal/llm"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle phase of a streaming exchange.
type State int

const (
	// StateIdle is a session that has not started streaming.
	StateIdle State = iota

	// StateStreaming is an exchange with deltas still arriving.
	StateStreaming

	// StateCancelled is a user-interrupted exchange. Terminal; the
	// partial content is kept for display but never persisted.
	StateCancelled

	// StateCompleted is a cleanly finished exchange. Terminal and the
	// only state eligible for persistence.
	StateCompleted

	// StateFailed is an exchange ended by a transport or service error.
	// Terminal; partial content is kept for display.
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateCompleted || s == StateFailed
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one streaming exchange with the completion service. All
// methods are safe for concurrent use: the consumer goroutine appends
// deltas while the UI event loop may cancel at any moment.
type Session struct {
	mu sync.Mutex

	id        string
	state     State
	content   strings.Builder
	deltas    int
	startedAt time.Time
	endedAt   time.Time

	generationID string
	usage        *llm.Usage
	err          error

	saved bool
}

// NewSession creates a session in StateIdle with a fresh request ID.
func NewSession() *Session {
	return &Session{
		id: "req_" + uuid.NewString(),
	}
}

// ID returns the client-generated request ID for this exchange.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves the session from Idle to Streaming. Returns false if the
// session already started.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateStreaming
	s.startedAt = time.Now()
	return true
}

// AppendDelta records one content delta. Deltas arriving after the
// session left StateStreaming are dropped; the return value reports
// whether the delta was kept.
func (s *Session) AppendDelta(delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return false
	}
	s.content.WriteString(delta)
	s.deltas++
	return true
}

// Content returns the accumulated response so far.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

// DeltaCount returns the number of deltas kept.
func (s *Session) DeltaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltas
}

// Cancel marks the session cancelled. Only a streaming session can be
// cancelled; terminal states are unaffected. Returns true on transition.
func (s *Session) Cancel() bool {
	return s.transition(StateStreaming, StateCancelled)
}

// Complete marks the session cleanly finished. A cancelled or failed
// session stays that way: the transition only fires from Streaming.
func (s *Session) Complete() bool {
	return s.transition(StateStreaming, StateCompleted)
}

// Fail marks the session failed with the given cause.
func (s *Session) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return false
	}
	s.state = StateFailed
	s.err = err
	s.endedAt = time.Now()
	return true
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	s.endedAt = time.Now()
	return true
}

// Err returns the failure cause, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetGenerationID records the service-side generation identifier.
func (s *Session) SetGenerationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generationID = id
}

// GenerationID returns the service-side generation identifier, if known.
func (s *Session) GenerationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationID
}

// SetUsage records the token usage reported by the stream.
func (s *Session) SetUsage(u *llm.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = u
}

// Usage returns the reported token usage, or nil.
func (s *Session) Usage() *llm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// ResponseSeconds returns the wall-clock duration of the exchange.
func (s *Session) ResponseSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.startedAt).Seconds()
}

// MarkSaved claims the single persistence slot for this session. It
// returns true exactly once, and only for a completed session; every
// later call, and any call on a non-completed session, returns false.
func (s *Session) MarkSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCompleted || s.saved {
		return false
	}
	s.saved = true
	return true
}

// Saved reports whether the exchange has been persisted.
func (s *Session) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}
