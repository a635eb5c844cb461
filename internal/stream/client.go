// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
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

	"github.com/jeranaias/gatewayz-core/internal/authflow"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// maxLineSize caps a single SSE line so a misbehaving upstream cannot
	// balloon memory.
	maxLineSize = 64 * 1024

	// dataPrefix frames SSE payload lines.
	dataPrefix = "data: "

	// doneMarker ends an SSE completion stream.
	doneMarker = "[DONE]"
)

var (
	// ErrAuthRequired marks an HTTP 401 from the completions endpoint.
	ErrAuthRequired = errors.New("stream: authentication required")

	// ErrNoAPIKey means the credential store is empty.
	ErrNoAPIKey = errors.New("stream: no API key available")
)

// StreamError wraps a mid-stream failure, preserving the content already
// received so the UI can keep the partial response on screen.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream: failed after %d chars: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream: failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *StreamError) Unwrap() error { return e.Err }

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one turn in the completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a streaming chat completion request.
type Request struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// Chunk is one SSE frame of the streamed completion.
type Chunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Content returns the first choice's delta content.
func (c *Chunk) Content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Done reports whether the upstream marked the completion finished.
func (c *Chunk) Done() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// Callback receives each chunk as it arrives.
type Callback func(chunk Chunk)

// =============================================================================
// CLIENT
// =============================================================================

// Config holds streaming client configuration.
type Config struct {
	// BaseURL is the completions API root. Required.
	BaseURL string

	// Auth supplies credentials and the shared refresh. Required.
	Auth *authflow.Coordinator

	// HTTPClient overrides the default client. Optional. Streaming
	// responses disable the overall timeout; the context bounds them.
	HTTPClient *http.Client

	// Logger receives retry diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Client streams chat completions. Safe for concurrent use; concurrent
// streams hitting 401 share one credential refresh through the
// coordinator.
type Client struct {
	baseURL    string
	auth       *authflow.Coordinator
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a streaming client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       cfg.Auth,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Stream runs one streaming completion for sess, invoking onChunk per
// frame, and returns the assembled content.
//
// On HTTP 401 it awaits the shared credential refresh, re-reads the key,
// and retries the original request exactly once. A second 401 is terminal:
// it is surfaced as ErrAuthRequired rather than starting another refresh
// cycle, which bounds retry amplification at one.
func (c *Client) Stream(ctx context.Context, sess *Session, req Request, onChunk Callback) (string, error) {
	req.Stream = true

	key, ok := c.auth.APIKey()
	if !ok {
		sess.fail(ErrNoAPIKey)
		return "", ErrNoAPIKey
	}

	sess.transition(StateStreaming)
	content, err := c.attempt(ctx, key, req, onChunk)
	if !errors.Is(err, ErrAuthRequired) {
		return c.finish(sess, content, err)
	}

	// First 401: join the shared refresh.
	sess.transition(StateAwaitingRefresh)
	if rerr := c.auth.HandleAuthError(ctx); rerr != nil {
		sess.fail(rerr)
		return content, rerr
	}

	key, ok = c.auth.APIKey()
	if !ok {
		sess.fail(ErrNoAPIKey)
		return content, ErrNoAPIKey
	}

	c.logger.Printf("stream: session %s retrying with refreshed credentials", sess.ID)
	sess.transition(StateRetrying)
	content, err = c.attempt(ctx, key, req, onChunk)
	return c.finish(sess, content, err)
}

// finish settles the session state for a final attempt outcome.
func (c *Client) finish(sess *Session, content string, err error) (string, error) {
	if err != nil {
		sess.fail(err)
		return content, err
	}
	sess.complete()
	return content, nil
}

// =============================================================================
// SINGLE ATTEMPT
// =============================================================================

// attempt performs one streaming request and consumes its SSE body.
func (c *Client) attempt(ctx context.Context, apiKey string, req Request, onChunk Callback) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("stream: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("stream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("stream: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxLineSize))
		return "", ErrAuthRequired
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxLineSize))
		return "", fmt.Errorf("stream: completions endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return c.consume(resp.Body, onChunk)
}

// consume parses the SSE body, accumulating delta content.
func (c *Client) consume(body io.Reader, onChunk Callback) (string, error) {
	var content strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue // comments, blank keep-alive lines
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneMarker {
			return content.String(), nil
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// One malformed frame is not worth killing the stream over.
			c.logger.Printf("stream: skipping malformed chunk: %v", err)
			continue
		}
		content.WriteString(chunk.Content())
		if onChunk != nil {
			onChunk(chunk)
		}
		if chunk.Done() {
			return content.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return content.String(), &StreamError{Partial: content.String(), Err: err}
	}
	// EOF without [DONE]: the connection dropped mid-stream.
	return content.String(), &StreamError{Partial: content.String(), Err: io.ErrUnexpectedEOF}
}
