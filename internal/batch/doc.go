// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package batch accumulates chat-message persistence into bounded batches
// to cut backend round-trips during streaming.
//
// Assistant messages trickle in as a stream completes; persisting each one
// individually hammers the chat-history API. The Batcher holds them in a
// per-session batch that closes when either threshold is reached:
//
//   - the batch reaches MaxSize messages (default 10), or
//   - Window (default 1s) has elapsed since the batch opened
//
// The window is anchored to batch creation, not reset per message, so a
// steady trickle still flushes within one window. User-authored messages
// bypass batching entirely and persist immediately so the user's own
// message never appears to save late.
//
// Within a batch, persisted order always equals insertion order. A failed
// flush is retried once and then surfaced through OnFlushError with the
// affected messages; buffered output is never silently dropped. An optional
// sqlite-backed Outbox journals pending messages so a crash cannot lose
// them either.
package batch
