// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/gatewayz-core/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultWindow is how long a batch stays open after creation.
	DefaultWindow = time.Second

	// DefaultMaxSize closes a batch early once it holds this many messages.
	DefaultMaxSize = 10
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("batch: batcher is closed")

// Saver is the chat-persistence collaborator. It must persist msgs in the
// order given.
type Saver interface {
	SaveMessages(ctx context.Context, sessionID string, msgs []model.Message) error
}

// SaverFunc adapts a function to the Saver interface.
type SaverFunc func(ctx context.Context, sessionID string, msgs []model.Message) error

// SaveMessages implements Saver.
func (f SaverFunc) SaveMessages(ctx context.Context, sessionID string, msgs []model.Message) error {
	return f(ctx, sessionID, msgs)
}

// =============================================================================
// BATCHER
// =============================================================================

// Config holds batcher configuration.
type Config struct {
	// Saver persists closed batches. Required.
	Saver Saver

	// Window is the batch-open duration (default 1s).
	Window time.Duration

	// MaxSize is the early-close threshold (default 10).
	MaxSize int

	// Journal, when set, records pending messages durably until their
	// flush succeeds.
	Journal *Outbox

	// OnFlushError is invoked after the bounded retry is exhausted, with
	// the messages that failed to persist. Optional.
	OnFlushError func(sessionID string, msgs []model.Message, err error)

	// Logger receives flush diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Batcher groups assistant messages into per-session batches.
// Safe for concurrent use.
type Batcher struct {
	saver   Saver
	window  time.Duration
	maxSize int
	journal *Outbox
	onError func(sessionID string, msgs []model.Message, err error)
	logger  *log.Logger

	mu      sync.Mutex
	batches map[string]*openBatch
	closed  bool

	// flights tracks in-progress flush goroutines so FlushAll and Close
	// can wait them out.
	flights sync.WaitGroup
}

// openBatch is one accumulating batch. The timer is armed once, when the
// batch opens; it is never re-armed on append.
type openBatch struct {
	sessionID string
	items     []model.Message
	timer     *time.Timer
	openedAt  time.Time
}

// NewBatcher creates a batcher from cfg.
func NewBatcher(cfg Config) *Batcher {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Batcher{
		saver:   cfg.Saver,
		window:  window,
		maxSize: maxSize,
		journal: cfg.Journal,
		onError: cfg.OnFlushError,
		logger:  logger,
		batches: make(map[string]*openBatch),
	}
}

// Add routes a message into persistence. User messages are saved
// immediately and their error returned to the caller; assistant and system
// messages join the session's open batch and Add returns nil right away.
func (b *Batcher) Add(ctx context.Context, msg model.Message) error {
	if msg.Role.IsUser() {
		// Deliberate UX policy: the user's own message must never appear
		// to save late, so it skips the batch entirely.
		return b.saver.SaveMessages(ctx, msg.SessionID, []model.Message{msg})
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	b.journalAppend(msg)

	ob, ok := b.batches[msg.SessionID]
	if !ok {
		ob = &openBatch{
			sessionID: msg.SessionID,
			openedAt:  time.Now(),
		}
		// Window anchored to batch creation. Appends do not re-arm it.
		ob.timer = time.AfterFunc(b.window, func() {
			b.closeBatch(msg.SessionID, ob)
		})
		b.batches[msg.SessionID] = ob
	}
	ob.items = append(ob.items, msg)

	if len(ob.items) >= b.maxSize {
		// Size threshold reached: cut the batch now and stop its timer so
		// the window cannot fire a redundant flush on an emptied batch.
		delete(b.batches, msg.SessionID)
		ob.timer.Stop()
		b.mu.Unlock()
		b.spawnFlush(ob.sessionID, ob.items)
		return nil
	}
	b.mu.Unlock()
	return nil
}

// Pending returns how many messages are buffered for a session.
func (b *Batcher) Pending(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ob, ok := b.batches[sessionID]; ok {
		return len(ob.items)
	}
	return 0
}

// FlushAll forces immediate persistence of every open batch and waits for
// all in-flight flushes, including retries, to finish. Use it before
// navigation or teardown so buffered messages are not lost.
func (b *Batcher) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	cut := make([]*openBatch, 0, len(b.batches))
	for id, ob := range b.batches {
		ob.timer.Stop()
		delete(b.batches, id)
		cut = append(cut, ob)
	}
	b.mu.Unlock()

	var errs []error
	for _, ob := range cut {
		if err := b.flush(ctx, ob.sessionID, ob.items); err != nil {
			errs = append(errs, err)
		}
	}
	b.flights.Wait()
	return errors.Join(errs...)
}

// Close flushes everything and rejects further Adds.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.FlushAll(ctx)
}

// =============================================================================
// FLUSH PATH
// =============================================================================

// closeBatch is the timer callback for window expiry. The batch may already
// have been cut by a size-triggered flush or FlushAll; the map check under
// lock makes the timer a no-op in that case.
func (b *Batcher) closeBatch(sessionID string, ob *openBatch) {
	b.mu.Lock()
	current, ok := b.batches[sessionID]
	if !ok || current != ob {
		b.mu.Unlock()
		return
	}
	delete(b.batches, sessionID)
	b.mu.Unlock()

	b.spawnFlush(sessionID, ob.items)
}

// spawnFlush runs a flush asynchronously, tracked so FlushAll can wait.
func (b *Batcher) spawnFlush(sessionID string, msgs []model.Message) {
	b.flights.Add(1)
	go func() {
		defer b.flights.Done()
		_ = b.flush(context.Background(), sessionID, msgs)
	}()
}

// flush persists one closed batch: one attempt, one bounded retry, then the
// error callback. The journal rows are cleared only on success so a crash
// after a failed flush still leaves the messages recoverable.
func (b *Batcher) flush(ctx context.Context, sessionID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	err := b.saver.SaveMessages(ctx, sessionID, msgs)
	if err != nil {
		b.logger.Printf("batch: flush of %d messages for session %s failed, retrying once: %v", len(msgs), sessionID, err)
		err = b.saver.SaveMessages(ctx, sessionID, msgs)
	}

	if err != nil {
		b.logger.Printf("batch: flush retry for session %s failed: %v", sessionID, err)
		if b.onError != nil {
			b.onError(sessionID, msgs, err)
		}
		return err
	}

	b.journalRemove(msgs)
	return nil
}

// =============================================================================
// JOURNAL HOOKS
// =============================================================================

// journalAppend records a pending message. Journal trouble is logged, not
// fatal: the message is still held in memory and will flush normally.
func (b *Batcher) journalAppend(msg model.Message) {
	if b.journal == nil {
		return
	}
	if err := b.journal.Append(msg); err != nil {
		b.logger.Printf("batch: outbox append failed for message %s: %v", msg.ID, err)
	}
}

func (b *Batcher) journalRemove(msgs []model.Message) {
	if b.journal == nil {
		return
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := b.journal.Remove(ids); err != nil {
		b.logger.Printf("batch: outbox cleanup failed: %v", err)
	}
}
