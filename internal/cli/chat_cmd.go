// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/gatewayz-core/internal/batch"
	"github.com/jeranaias/gatewayz-core/internal/history"
	"github.com/jeranaias/gatewayz-core/internal/model"
	"github.com/jeranaias/gatewayz-core/internal/stream"
)

// HandleChat runs one streaming completion end to end: the prompt is saved
// immediately, the assistant reply streams to stdout and rides the batcher
// into chat history. This exercises the same pipeline the app uses, so it
// doubles as a deployment smoke test.
//
// Usage: gatewayz chat <prompt> [--model M] [--session ID]
func HandleChat(args []string) error {
	parser := NewArgParser(args)
	prompt := parser.Positional(0)
	if prompt == "" {
		return fmt.Errorf("usage: gatewayz chat <prompt> [--model M] [--session ID]")
	}

	cfg := loadConfig()
	auth := newAuth(cfg)

	if _, ok := auth.APIKey(); !ok {
		return fmt.Errorf("GATEWAYZ_API_KEY is not set")
	}

	histClient := history.NewClient(history.Config{
		BaseURL:   cfg.History.BaseURL,
		Keys:      envKeyStore{},
		RateLimit: rateLimit(cfg.History.RateLimit),
		Burst:     cfg.History.Burst,
	})

	var journal *batch.Outbox
	if cfg.Batch.OutboxPath != "" {
		var err error
		journal, err = batch.OpenOutbox(cfg.Batch.OutboxPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: outbox disabled: %v\n", err)
		} else {
			defer journal.Close()
		}
	}

	batcher := batch.NewBatcher(batch.Config{
		Saver:   histClient,
		Window:  cfg.BatchWindow(),
		MaxSize: cfg.Batch.MaxSize,
		Journal: journal,
		OnFlushError: func(sessionID string, msgs []model.Message, err error) {
			fmt.Fprintf(os.Stderr, "Warning: %d message(s) for session %s not persisted: %v\n",
				len(msgs), sessionID, err)
		},
	})

	streamClient := stream.NewClient(stream.Config{
		BaseURL: cfg.Stream.BaseURL,
		Auth:    auth,
	})

	sessionID := parser.FlagOrDefault("session", uuid.New().String())
	modelID := parser.FlagOrDefault("model", cfg.Stream.DefaultModel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// The user turn persists synchronously; only assistant output batches.
	userMsg := model.NewMessage(sessionID, model.RoleUser, prompt)
	if err := batcher.Add(ctx, userMsg); err != nil {
		return fmt.Errorf("saving prompt: %w", err)
	}

	sess := stream.NewSession(sessionID)
	content, err := streamClient.Stream(ctx, sess, stream.Request{
		Model: modelID,
		Messages: []stream.ChatMessage{
			{Role: "user", Content: prompt},
		},
	}, func(chunk stream.Chunk) {
		fmt.Print(chunk.Content())
	})
	fmt.Println()

	if err != nil {
		// Partial content still rides the batcher; dropping buffered
		// assistant output is worse than persisting a truncated turn.
		if content != "" {
			reply := model.NewMessage(sessionID, model.RoleAssistant, content)
			reply.Model = modelID
			if addErr := batcher.Add(ctx, reply); addErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: partial reply not buffered: %v\n", addErr)
			}
			batcher.Close(ctx)
		}
		return fmt.Errorf("stream %s: %w", sess.State(), err)
	}

	reply := model.NewMessage(sessionID, model.RoleAssistant, content)
	reply.Model = modelID
	if err := batcher.Add(ctx, reply); err != nil {
		return fmt.Errorf("buffering reply: %w", err)
	}
	if err := batcher.Close(ctx); err != nil {
		return fmt.Errorf("persisting reply: %w", err)
	}

	fmt.Fprintf(os.Stderr, "session %s: %d chars persisted\n", sessionID, len(content))
	return nil
}
