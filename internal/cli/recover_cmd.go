// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/gatewayz-core/internal/batch"
	"github.com/jeranaias/gatewayz-core/internal/history"
	"github.com/jeranaias/gatewayz-core/internal/model"
	"github.com/jeranaias/gatewayz-core/internal/util"
)

// HandleRecover lists outbox rows left behind by a crash, and re-persists
// them with --flush.
//
// Usage: gatewayz recover [--flush]
func HandleRecover(args []string) error {
	parser := NewArgParser(args)

	cfg := loadConfig()
	if cfg.Batch.OutboxPath == "" {
		return fmt.Errorf("no outbox configured (set batch.outbox_path or GATEWAYZ_OUTBOX)")
	}

	outbox, err := batch.OpenOutbox(cfg.Batch.OutboxPath)
	if err != nil {
		return fmt.Errorf("opening outbox: %w", err)
	}
	defer outbox.Close()

	pending, err := outbox.Pending()
	if err != nil {
		return fmt.Errorf("reading outbox: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("outbox is empty")
		return nil
	}

	fmt.Printf("%-38s %-10s %s\n", "SESSION", "ROLE", "CONTENT")
	for _, msg := range pending {
		fmt.Printf("%-38s %-10s %s\n", msg.SessionID, msg.Role, util.Truncate(msg.Content, 60))
	}
	fmt.Printf("\n%d pending message(s)\n", len(pending))

	if !parser.BoolFlag("flush") {
		return nil
	}

	histClient := history.NewClient(history.Config{
		BaseURL:   cfg.History.BaseURL,
		Keys:      envKeyStore{},
		RateLimit: rateLimit(cfg.History.RateLimit),
		Burst:     cfg.History.Burst,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Group by session; per-session order is the journal's seq order.
	bySession := make(map[string][]model.Message)
	var order []string
	for _, msg := range pending {
		if _, seen := bySession[msg.SessionID]; !seen {
			order = append(order, msg.SessionID)
		}
		bySession[msg.SessionID] = append(bySession[msg.SessionID], msg)
	}

	for _, sessionID := range order {
		msgs := bySession[sessionID]
		if err := histClient.SaveMessages(ctx, sessionID, msgs); err != nil {
			return fmt.Errorf("re-persisting session %s: %w", sessionID, err)
		}
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := outbox.Remove(ids); err != nil {
			return fmt.Errorf("clearing journal for session %s: %w", sessionID, err)
		}
		fmt.Printf("session %s: %d message(s) recovered\n", sessionID, len(msgs))
	}
	return nil
}
