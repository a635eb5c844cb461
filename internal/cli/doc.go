// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gatewayz diagnostic commands.
//
// These are headless checks against a Gatewayz deployment: list and price
// a gateway's catalog, normalize a single raw price, run a streaming chat
// turn through the full batching pipeline, and inspect the crash-recovery
// outbox. Rendering lives elsewhere; everything here prints plain text.
package cli
