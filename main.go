// gatewayz - client-side coordination core and diagnostics for Gatewayz.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/gatewayz-core/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdModels:
		err = cli.HandleModels(args)
	case cli.CmdPricing:
		err = cli.HandlePricing(args)
	case cli.CmdChat:
		err = cli.HandleChat(args)
	case cli.CmdRecover:
		err = cli.HandleRecover(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintHelp()
		if len(args) > 0 {
			fmt.Fprintf(os.Stderr, "\nUnknown command: %s\n", args[0])
			os.Exit(2)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
