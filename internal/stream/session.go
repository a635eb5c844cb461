// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION STATE MACHINE
// =============================================================================

// State describes where an in-flight stream is in its lifecycle.
type State int

const (
	// StateStreaming means chunks are (or are about to be) flowing.
	StateStreaming State = iota
	// StateAwaitingRefresh means the stream hit 401 and is waiting on the
	// shared credential refresh.
	StateAwaitingRefresh
	// StateRetrying means fresh credentials arrived and the single bounded
	// retry is running.
	StateRetrying
	// StateFailed is terminal: refresh failed, the retry also got 401, or
	// a non-auth error killed the stream.
	StateFailed
	// StateCompleted is terminal: the stream finished cleanly.
	StateCompleted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateAwaitingRefresh:
		return "awaiting_refresh"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateCompleted
}

// Session correlates one streaming chat completion with its chat session
// and tracks the attempt lifecycle. Created when a send begins streaming;
// discarded once the stream completes, retries to success, or fails
// terminally.
type Session struct {
	ID        string
	ChatID    string
	StartedAt time.Time

	mu    sync.Mutex
	state State
	err   error
}

// NewSession creates a session in StateStreaming for a chat.
func NewSession(chatID string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		StartedAt: time.Now(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// transition moves to a non-terminal state. Terminal states are sticky.
func (s *Session) transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = next
}

// fail moves to StateFailed with its cause.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = StateFailed
	s.err = err
}

// complete moves to StateCompleted.
func (s *Session) complete() {
	s.transition(StateCompleted)
}
