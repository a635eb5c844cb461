// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for gatewayz-core.
//
// Configuration lives in ~/.gatewayz/config.toml. Missing files fall back
// to built-in defaults; GATEWAYZ_* environment variables override either.
// Watcher re-loads the file on change so operational knobs, notably the
// gateway pricing-unit lists, can be corrected without a restart.
package config
