// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the coordination core:
// crash-safe file writes for the disk cache backend and string truncation
// for log previews.
package util
