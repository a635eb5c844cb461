// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"
)

func TestArgParser(t *testing.T) {
	tests := []struct {
		name string
		args []string
		test func(t *testing.T, p *ArgParser)
	}{
		{
			name: "positional and flags",
			args: []string{"fireworks", "--max-price", "5", "--sort"},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.Positional(0); got != "fireworks" {
					t.Errorf("Positional(0) = %q, want fireworks", got)
				}
				if got := p.Flag("max-price"); got != "5" {
					t.Errorf("Flag(max-price) = %q, want 5", got)
				}
				if !p.BoolFlag("sort") {
					t.Error("BoolFlag(sort) = false, want true")
				}
			},
		},
		{
			name: "equals form",
			args: []string{"--session=abc", "--free=true"},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.Flag("session"); got != "abc" {
					t.Errorf("Flag(session) = %q, want abc", got)
				}
				if !p.BoolFlag("free") {
					t.Error("BoolFlag(free) = false, want true")
				}
			},
		},
		{
			name: "float flag with default",
			args: []string{"--max-price", "2.5"},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.FloatFlag("max-price", -1); got != 2.5 {
					t.Errorf("FloatFlag(max-price) = %v, want 2.5", got)
				}
				if got := p.FloatFlag("missing", -1); got != -1 {
					t.Errorf("FloatFlag(missing) = %v, want -1", got)
				}
			},
		},
		{
			name: "unparsable float falls back",
			args: []string{"--max-price", "cheap"},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.FloatFlag("max-price", 9); got != 9 {
					t.Errorf("FloatFlag = %v, want default 9", got)
				}
			},
		},
		{
			name: "missing positional is empty",
			args: []string{},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.Positional(0); got != "" {
					t.Errorf("Positional(0) = %q, want empty", got)
				}
			},
		},
		{
			name: "flag or default",
			args: []string{"--model", "llama"},
			test: func(t *testing.T, p *ArgParser) {
				if got := p.FlagOrDefault("model", "gpt"); got != "llama" {
					t.Errorf("FlagOrDefault = %q, want llama", got)
				}
				if got := p.FlagOrDefault("absent", "gpt"); got != "gpt" {
					t.Errorf("FlagOrDefault = %q, want gpt", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, NewArgParser(tt.args))
		})
	}
}
