// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package authflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultRefreshTimeout bounds how long a waiter blocks on a refresh.
	// A refresh that outlives this is reported as failed to every waiter;
	// streams must not hang forever on a wedged identity provider.
	DefaultRefreshTimeout = 30 * time.Second

	// refreshKey is the singleflight key. There is exactly one logical
	// refresh operation process-wide, so one key.
	refreshKey = "credential-refresh"
)

var (
	// ErrRefreshTimeout is returned when a refresh does not settle within
	// the configured timeout.
	ErrRefreshTimeout = errors.New("authflow: credential refresh timed out")

	// ErrNoRefresher is returned when no refresh collaborator is wired.
	ErrNoRefresher = errors.New("authflow: no refresher configured")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Refresher is the external credential-refresh collaborator. It resolves
// once new credentials have been persisted to the key store.
type Refresher interface {
	RefreshCredentials(ctx context.Context) error
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) error

// RefreshCredentials implements Refresher.
func (f RefresherFunc) RefreshCredentials(ctx context.Context) error { return f(ctx) }

// KeyStore is the external credential-storage collaborator. Reads are
// synchronous; the coordinator never writes credentials.
type KeyStore interface {
	StoredAPIKey() (string, bool)
}

// KeyStoreFunc adapts a function to the KeyStore interface.
type KeyStoreFunc func() (string, bool)

// StoredAPIKey implements KeyStore.
func (f KeyStoreFunc) StoredAPIKey() (string, bool) { return f() }

// RefreshResult is the typed payload delivered to subscribers when a
// refresh cycle settles.
type RefreshResult struct {
	Err        error
	FinishedAt time.Time
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Config holds coordinator configuration.
type Config struct {
	// Refresher performs the actual credential refresh. Required.
	Refresher Refresher

	// Keys is the credential store read after a refresh. Required.
	Keys KeyStore

	// Timeout bounds each waiter (default: 30s).
	Timeout time.Duration

	// Logger receives refresh lifecycle diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Coordinator deduplicates concurrent credential-refresh requests.
// Safe for concurrent use.
type Coordinator struct {
	refresher Refresher
	keys      KeyStore
	timeout   time.Duration
	logger    *log.Logger

	group singleflight.Group

	// timerFn is swapped in tests for deterministic timeout behavior.
	timerFn func(d time.Duration) <-chan time.Time

	mu   sync.Mutex
	subs []chan RefreshResult
}

// NewCoordinator creates a coordinator from cfg.
func NewCoordinator(cfg Config) *Coordinator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		refresher: cfg.Refresher,
		keys:      cfg.Keys,
		timeout:   timeout,
		logger:    logger,
		timerFn: func(d time.Duration) <-chan time.Time {
			return time.After(d)
		},
	}
}

// HandleAuthError is called by a stream that received HTTP 401. If no
// refresh is in flight it starts one; otherwise it joins the existing one.
// It returns when the shared refresh settles, the timeout elapses, or ctx
// is cancelled, whichever happens first.
//
// A nil return means fresh credentials are in the store; the caller should
// re-read the key via APIKey and retry its request exactly once.
func (c *Coordinator) HandleAuthError(ctx context.Context) error {
	if c.refresher == nil {
		return ErrNoRefresher
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return nil, c.runRefresh()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-c.timerFn(c.timeout):
		// The underlying refresh keeps running and will settle (its own
		// context is bounded too); this waiter just stops waiting.
		return ErrRefreshTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRefresh executes the shared refresh call. It runs once per cycle no
// matter how many waiters joined, detached from any single waiter's
// context: one stream cancelling must not abort the refresh the others
// depend on.
func (c *Coordinator) runRefresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	err := c.refresher.RefreshCredentials(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrRefreshTimeout
	}

	if err != nil {
		c.logger.Printf("authflow: credential refresh failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
	}
	c.publish(RefreshResult{Err: err, FinishedAt: time.Now()})
	return err
}

// APIKey re-reads the current credential from the store. It is never cached
// inside the coordinator: a value captured before a refresh would be stale.
func (c *Coordinator) APIKey() (string, bool) {
	if c.keys == nil {
		return "", false
	}
	return c.keys.StoredAPIKey()
}

// =============================================================================
// COMPLETION NOTIFICATION
// =============================================================================

// Subscribe registers for refresh-completion notifications and returns the
// receiving channel. The channel is buffered; a subscriber that is not
// draining misses results rather than blocking a settle.
func (c *Coordinator) Subscribe() <-chan RefreshResult {
	ch := make(chan RefreshResult, 1)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// publish fans a settled result out to all subscribers without blocking.
func (c *Coordinator) publish(res RefreshResult) {
	c.mu.Lock()
	subs := make([]chan RefreshResult, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- res:
		default:
		}
	}
}
