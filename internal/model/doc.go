// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the shared domain types for the Gatewayz
// coordination core.
//
// This package defines the records exchanged between the streaming,
// batching, and persistence layers:
//
//   - Message: one chat message with role, content, and token statistics
//   - Session: metadata for a chat session
//   - SessionPatch: partial update applied to a session
//   - Role: message role enumeration (user, assistant, system)
//
// Types here carry no behavior beyond construction and small accessors;
// coordination logic lives in the packages that consume them.
package model
