// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the shared domain types for the Gatewayz
// coordination core.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsUser reports whether the message was authored by the user.
// User messages bypass batching and are persisted immediately.
func (r Role) IsUser() bool {
	return r == RoleUser
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single chat message pending or confirmed in
// persistence.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`

	// Token statistics (assistant messages)
	TokenCount int `json:"token_count,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current timestamp.
func NewMessage(sessionID string, role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// =============================================================================
// SESSION TYPES
// =============================================================================

// Session holds metadata for one chat session.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MessageCount int `json:"message_count,omitempty"`
}

// SessionPatch is a partial session update sent to the backend.
// Nil fields are left unchanged.
type SessionPatch struct {
	Title *string `json:"title,omitempty"`
	Model *string `json:"model,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SessionPatch) IsEmpty() bool {
	return p.Title == nil && p.Model == nil
}
