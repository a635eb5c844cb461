// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package optimistic drives eventual backend confirmation of UI mutations
// that were applied ahead of the round-trip.
//
// The caller mutates visible state first, then hands the manager an Update
// carrying both the optimistic data and the data to restore on failure. The
// manager retries the registered sync function a bounded number of times;
// when retries are exhausted it invokes the rollback handler so the caller
// can restore the previous state and tell the user. The manager never
// touches UI state itself.
//
// Updates for different entities are independent and sync concurrently.
// For the same entity, last-optimistic-write-wins: each new update bumps a
// per-entity generation, and a rollback fires only if its generation is
// still current. A stale rollback from a superseded update is dropped so it
// cannot clobber newer optimistic state.
package optimistic

import (
	"context"
	"log"
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts caps sync retries per update.
	DefaultMaxAttempts = 3

	// DefaultRetryBaseDelay seeds the exponential backoff between attempts.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay bounds the backoff growth.
	retryMaxDelay = 5 * time.Second
)

// UpdateType names the kind of mutation being confirmed.
type UpdateType string

const (
	// TypeSessionUpdate is a session metadata edit (title, model).
	TypeSessionUpdate UpdateType = "session_update"
	// TypeSessionDelete removes a session.
	TypeSessionDelete UpdateType = "session_delete"
)

// Update is one pending local mutation awaiting backend confirmation.
type Update struct {
	EntityID       string
	Type           UpdateType
	OptimisticData interface{}
	RollbackData   interface{}

	// Attempts is how many sync attempts have run, filled in by the
	// manager before callbacks fire.
	Attempts int

	generation uint64
}

// SyncFunc pushes an update to the backend.
type SyncFunc func(ctx context.Context, u Update) error

// RollbackFunc is invoked after retries are exhausted so the caller can
// restore RollbackData and notify the user.
type RollbackFunc func(u Update)

// =============================================================================
// MANAGER
// =============================================================================

// Config holds manager configuration.
type Config struct {
	// Sync pushes updates to the backend. Required.
	Sync SyncFunc

	// Rollback is called once per abandoned update. Optional.
	Rollback RollbackFunc

	// MaxAttempts caps retries (default 3).
	MaxAttempts int

	// RetryBaseDelay seeds the backoff (default 500ms). Tests shrink it.
	RetryBaseDelay time.Duration

	// Logger receives sync diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Manager orchestrates confirm/rollback for optimistic updates.
// Safe for concurrent use.
type Manager struct {
	sync        SyncFunc
	rollback    RollbackFunc
	maxAttempts int
	baseDelay   time.Duration
	logger      *log.Logger

	mu          sync.Mutex
	generations map[string]uint64

	inflight sync.WaitGroup
}

// NewManager creates a manager from cfg.
func NewManager(cfg Config) *Manager {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		sync:        cfg.Sync,
		rollback:    cfg.Rollback,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// AddUpdate registers a mutation the caller has already applied to visible
// state and schedules its backend sync. Returns immediately.
func (m *Manager) AddUpdate(entityID string, typ UpdateType, optimisticData, rollbackData interface{}) {
	m.mu.Lock()
	m.generations[entityID]++
	gen := m.generations[entityID]
	m.mu.Unlock()

	u := Update{
		EntityID:       entityID,
		Type:           typ,
		OptimisticData: optimisticData,
		RollbackData:   rollbackData,
		generation:     gen,
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.run(u)
	}()
}

// Wait blocks until every scheduled sync has confirmed or rolled back.
// Used at teardown and in tests.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// run drives one update to confirmation or rollback.
func (m *Manager) run(u Update) {
	ctx := context.Background()

	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		u.Attempts = attempt
		if err = m.sync(ctx, u); err == nil {
			// Confirmed; the optimistic state is authoritative as-is and
			// the update record is discarded.
			return
		}
		if attempt < m.maxAttempts {
			time.Sleep(m.backoff(attempt))
		}
	}

	m.logger.Printf("optimistic: %s for entity %s abandoned after %d attempts: %v", u.Type, u.EntityID, u.Attempts, err)

	// Only the current generation may roll back. A newer optimistic write
	// for this entity owns the visible state now; restoring our stale
	// RollbackData over it would clobber the user's later edit.
	m.mu.Lock()
	current := m.generations[u.EntityID] == u.generation
	m.mu.Unlock()
	if !current {
		m.logger.Printf("optimistic: dropping stale rollback for entity %s (superseded)", u.EntityID)
		return
	}

	if m.rollback != nil {
		m.rollback(u)
	}
}

// backoff returns the exponential delay after a failed attempt.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
