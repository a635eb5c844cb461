// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"github.com/jeranaias/gatewayz-core/internal/authflow"
	"github.com/jeranaias/gatewayz-core/internal/config"
)

// =============================================================================
// COMMAND ROUTING
// =============================================================================

// Command identifies a top-level CLI command.
type Command string

const (
	CmdModels  Command = "models"
	CmdPricing Command = "pricing"
	CmdChat    Command = "chat"
	CmdRecover Command = "recover"
	CmdVersion Command = "version"
	CmdHelp    Command = "help"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Parse splits os.Args into a command and its arguments.
func Parse() (Command, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return CmdHelp, nil
	}

	switch args[0] {
	case "models":
		return CmdModels, args[1:]
	case "pricing":
		return CmdPricing, args[1:]
	case "chat":
		return CmdChat, args[1:]
	case "recover":
		return CmdRecover, args[1:]
	case "version", "--version", "-v":
		return CmdVersion, nil
	case "help", "--help", "-h":
		return CmdHelp, nil
	default:
		return CmdHelp, args
	}
}

// PrintVersion prints build information.
func PrintVersion() {
	fmt.Printf("gatewayz %s (%s, built %s)\n", Version, GitCommit, BuildDate)
}

// PrintHelp prints usage for all commands.
func PrintHelp() {
	fmt.Print(`gatewayz - Gatewayz client diagnostics

Usage:
  gatewayz models <gateway> [--free] [--max-price N] [--sort]
      List a gateway's model catalog with normalized prices.

  gatewayz pricing <gateway> <raw-price>
      Normalize one raw price the way the catalog display does.

  gatewayz chat <prompt> [--model M] [--session ID]
      Run one streaming completion through the batching pipeline.

  gatewayz recover [--flush]
      List (and optionally re-persist) outbox rows from a crash.

  gatewayz version
      Print build information.

Environment:
  GATEWAYZ_API_KEY    bearer token for the chat and recover commands
  GATEWAYZ_API_URL    override every base URL in one step
`)
}

// =============================================================================
// SHARED WIRING
// =============================================================================

// loadConfig loads configuration, exiting on malformed files rather than
// limping on with half-applied settings.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// envKeyStore reads the API key from the environment on every call, so a
// refresh that rewrites the variable is picked up without restart.
type envKeyStore struct{}

func (envKeyStore) StoredAPIKey() (string, bool) {
	key := os.Getenv("GATEWAYZ_API_KEY")
	return key, key != ""
}

// rateLimit converts the configured requests-per-second into a rate.Limit,
// preserving the negative-disables convention.
func rateLimit(perSecond float64) rate.Limit {
	return rate.Limit(perSecond)
}

// newAuth builds the shared credential coordinator. The diagnostic CLI has
// no interactive login, so the refresher just re-reads the environment; a
// 401 with an unchanged key surfaces as a terminal stream failure.
func newAuth(cfg *config.Config) *authflow.Coordinator {
	return authflow.NewCoordinator(authflow.Config{
		Refresher: authflow.RefresherFunc(func(ctx context.Context) error {
			return nil
		}),
		Keys:    envKeyStore{},
		Timeout: cfg.RefreshTimeout(),
	})
}
