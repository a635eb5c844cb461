// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/gatewayz-core/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// OUTBOX JOURNAL
// =============================================================================

// outboxSchema journals messages that have been produced but not yet
// confirmed persisted. seq preserves production order across sessions.
const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	msg_id      TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_session ON outbox(session_id);
`

// Outbox is a durable journal of not-yet-persisted messages. Rows are
// written when a message enters a batch and deleted when its flush
// succeeds, so messages buffered at crash time survive into the next run.
type Outbox struct {
	db *sql.DB
}

// OpenOutbox opens (or creates) the journal database at path.
func OpenOutbox(path string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	// SQLite allows one writer; keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure outbox: %w", err)
		}
	}

	if _, err := db.Exec(outboxSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize outbox schema: %w", err)
	}

	return &Outbox{db: db}, nil
}

// Append journals one pending message.
func (o *Outbox) Append(msg model.Message) error {
	_, err := o.db.Exec(
		`INSERT OR IGNORE INTO outbox (msg_id, session_id, role, content, model, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Model, msg.TokenCount, msg.Timestamp.UnixMilli(),
	)
	return err
}

// Remove deletes journal rows whose flush succeeded.
func (o *Outbox) Remove(msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgIDs)), ",")
	args := make([]interface{}, len(msgIDs))
	for i, id := range msgIDs {
		args[i] = id
	}
	_, err := o.db.Exec("DELETE FROM outbox WHERE msg_id IN ("+placeholders+")", args...)
	return err
}

// Pending returns all journaled messages in production order. Called on
// startup to recover messages buffered when the previous run died.
func (o *Outbox) Pending() ([]model.Message, error) {
	rows, err := o.db.Query(
		`SELECT msg_id, session_id, role, content, model, token_count, created_at
		 FROM outbox ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Model, &m.TokenCount, &createdAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.Timestamp = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Count returns the number of journaled messages.
func (o *Outbox) Count() (int, error) {
	var n int
	err := o.db.QueryRow("SELECT COUNT(*) FROM outbox").Scan(&n)
	return n, err
}

// Close releases the journal database.
func (o *Outbox) Close() error {
	return o.db.Close()
}
