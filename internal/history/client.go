// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history is the HTTP client for the Gatewayz chat-history backend.
//
// It implements the persistence collaborators consumed by the batching and
// optimistic-update layers: ordered message saves and partial session
// updates. Transient backend trouble (5xx, 429) is retried with exponential
// backoff; authentication failures are mapped to ErrAuthFailed so callers
// can hand them to the authflow coordinator. A client-side rate limiter
// bounds burst persistence traffic so a flush storm cannot trip the
// backend's limits.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/gatewayz-core/internal/authflow"
	"github.com/jeranaias/gatewayz-core/internal/model"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultTimeout bounds one persistence request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is how many times a transient failure is retried.
	DefaultMaxRetries = 3

	// retryBaseDelay seeds the exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff.
	retryMaxDelay = 10 * time.Second

	// maxResponseSize bounds how much of an error body is read.
	maxResponseSize = 1 << 20 // 1MB

	// DefaultRateLimit and DefaultBurst bound persistence traffic.
	DefaultRateLimit = rate.Limit(10)
	DefaultBurst     = 20
)

var (
	// ErrAuthFailed marks a 401 from the backend. Not retried here; the
	// caller owns the refresh-and-retry decision.
	ErrAuthFailed = errors.New("history: authentication failed")

	// ErrRateLimited marks a 429. Retried with backoff.
	ErrRateLimited = errors.New("history: rate limited")

	// ErrNotFound marks a 404 for an unknown session.
	ErrNotFound = errors.New("history: session not found")
)

// APIError is a non-sentinel backend error.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("history: backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("history: backend returned %d", e.Status)
}

// =============================================================================
// CLIENT
// =============================================================================

// Config holds client configuration.
type Config struct {
	// BaseURL is the chat-history API root. Required.
	BaseURL string

	// Keys supplies the bearer token per request. Required.
	Keys authflow.KeyStore

	// HTTPClient overrides the shared pooled client. Optional.
	HTTPClient *http.Client

	// MaxRetries caps transient-failure retries (default 3).
	MaxRetries int

	// RateLimit and Burst bound outbound request rate. Zero values use
	// defaults; a negative RateLimit disables limiting.
	RateLimit rate.Limit
	Burst     int

	// Logger receives retry diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Client talks to the chat-history backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	keys       authflow.KeyStore
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	logger     *log.Logger
}

// sharedHTTPClient pools connections across all history clients.
var sharedHTTPClient = &http.Client{
	Timeout: DefaultTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = sharedHTTPClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = DefaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	var limiter *rate.Limiter
	if limit > 0 {
		limiter = rate.NewLimiter(limit, burst)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keys:       cfg.Keys,
		httpClient: httpClient,
		maxRetries: maxRetries,
		limiter:    limiter,
		logger:     logger,
	}
}

// =============================================================================
// PERSISTENCE OPERATIONS
// =============================================================================

// saveMessagesRequest is the wire shape for a batch save.
type saveMessagesRequest struct {
	Messages []wireMessage `json:"messages"`
}

// wireMessage is one persisted message on the wire.
type wireMessage struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
	Timestamp  int64  `json:"timestamp_ms"`
}

// SaveMessages persists msgs for a session in the order given. The backend
// preserves array order, so insertion order survives the round-trip.
func (c *Client) SaveMessages(ctx context.Context, sessionID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	req := saveMessagesRequest{Messages: make([]wireMessage, len(msgs))}
	for i, m := range msgs {
		req.Messages[i] = wireMessage{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    m.Content,
			Model:      m.Model,
			TokenCount: m.TokenCount,
			Timestamp:  m.Timestamp.UnixMilli(),
		}
	}
	path := fmt.Sprintf("/v1/chat/sessions/%s/messages", sessionID)
	return c.do(ctx, http.MethodPost, path, req)
}

// UpdateSession applies a partial update to session metadata.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, patch model.SessionPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	path := fmt.Sprintf("/v1/chat/sessions/%s", sessionID)
	return c.do(ctx, http.MethodPatch, path, patch)
}

// =============================================================================
// REQUEST PATH
// =============================================================================

// do sends one JSON request with rate limiting, auth, and bounded retries
// for transient failures.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("history: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.logger.Printf("history: %s %s retry %d/%d in %v: %v", method, path, attempt, c.maxRetries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = c.send(ctx, method, path, body)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// send performs a single attempt.
func (c *Client) send(ctx context.Context, method, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("history: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.keys != nil {
		if key, ok := c.keys.StoredAPIKey(); ok {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("history: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return errorFromResponse(resp)
}

// errorFromResponse maps an HTTP error response to a Go error.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = apiErr.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
		}
		return ErrAuthFailed
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		return ErrRateLimited
	default:
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
}

// isRetryable reports whether an attempt error warrants another try.
// Auth failures and 4xx are not retryable; refreshing credentials is the
// caller's decision, not this client's.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}

// backoff returns the delay before retry n (0-based).
func (c *Client) backoff(n int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(n))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
