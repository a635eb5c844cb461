// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package optimistic

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// =============================================================================
// RETRY AND ROLLBACK TESTS
// =============================================================================

func TestAddUpdate_AlwaysFailingSyncRetriesThreeTimesThenRollsBack(t *testing.T) {
	var attempts int32
	var rollbacks int32
	var rolledBack Update

	var mu sync.Mutex
	m := NewManager(Config{
		Sync: func(ctx context.Context, u Update) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("backend rejected")
		},
		Rollback: func(u Update) {
			atomic.AddInt32(&rollbacks, 1)
			mu.Lock()
			rolledBack = u
			mu.Unlock()
		},
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	m.AddUpdate("session-1", TypeSessionUpdate, "New Title", "Old Title")
	m.Wait()

	require.EqualValues(t, 3, atomic.LoadInt32(&attempts), "sync is attempted exactly MaxAttempts times")
	require.EqualValues(t, 1, atomic.LoadInt32(&rollbacks), "rollback fires exactly once")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "session-1", rolledBack.EntityID)
	require.Equal(t, "Old Title", rolledBack.RollbackData)
	require.Equal(t, 3, rolledBack.Attempts)
}

func TestAddUpdate_SuccessDiscardsWithoutRollback(t *testing.T) {
	var attempts, rollbacks int32
	m := NewManager(Config{
		Sync: func(ctx context.Context, u Update) error {
			atomic.AddInt32(&attempts, 1)
			return nil
		},
		Rollback:       func(Update) { atomic.AddInt32(&rollbacks, 1) },
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	m.AddUpdate("session-1", TypeSessionUpdate, "New", "Old")
	m.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&attempts))
	require.EqualValues(t, 0, atomic.LoadInt32(&rollbacks))
}

func TestAddUpdate_EventualSuccessStopsRetrying(t *testing.T) {
	var attempts int32
	var rollbacks int32
	m := NewManager(Config{
		Sync: func(ctx context.Context, u Update) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Rollback:       func(Update) { atomic.AddInt32(&rollbacks, 1) },
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	m.AddUpdate("session-1", TypeSessionUpdate, "New", "Old")
	m.Wait()

	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	require.EqualValues(t, 0, atomic.LoadInt32(&rollbacks))
}

// =============================================================================
// SAME-ENTITY GENERATION TESTS
// =============================================================================

func TestAddUpdate_StaleRollbackDroppedWhenSuperseded(t *testing.T) {
	// The first update's sync fails; it only exhausts its retries after
	// the second update (which succeeds) has been registered. Its rollback
	// must be dropped: the newer optimistic write owns the visible state.
	release := make(chan struct{})
	var rollbacks int32

	m := NewManager(Config{
		Sync: func(ctx context.Context, u Update) error {
			if u.OptimisticData == "first" {
				<-release
				return errors.New("rejected")
			}
			return nil
		},
		Rollback:       func(Update) { atomic.AddInt32(&rollbacks, 1) },
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	m.AddUpdate("session-1", TypeSessionUpdate, "first", "original")
	m.AddUpdate("session-1", TypeSessionUpdate, "second", "first")
	close(release)
	m.Wait()

	require.EqualValues(t, 0, atomic.LoadInt32(&rollbacks),
		"a superseded update must not roll back over newer optimistic state")
}

func TestAddUpdate_CurrentGenerationStillRollsBack(t *testing.T) {
	var rollbacks int32
	m := NewManager(Config{
		Sync:           func(ctx context.Context, u Update) error { return errors.New("rejected") },
		Rollback:       func(Update) { atomic.AddInt32(&rollbacks, 1) },
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	// Two different entities: both are current, both roll back.
	m.AddUpdate("session-1", TypeSessionUpdate, "a", "old-a")
	m.AddUpdate("session-2", TypeSessionUpdate, "b", "old-b")
	m.Wait()

	require.EqualValues(t, 2, atomic.LoadInt32(&rollbacks))
}

// =============================================================================
// INDEPENDENCE TESTS
// =============================================================================

func TestAddUpdate_DifferentEntitiesSyncConcurrently(t *testing.T) {
	var active, peak int32
	m := NewManager(Config{
		Sync: func(ctx context.Context, u Update) error {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		},
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
	})

	for i := 0; i < 4; i++ {
		m.AddUpdate(string(rune('a'+i)), TypeSessionUpdate, i, i-1)
	}
	m.Wait()

	require.Greater(t, atomic.LoadInt32(&peak), int32(1),
		"updates for different entities must be in flight concurrently")
}
