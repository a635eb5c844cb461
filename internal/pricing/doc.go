// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing normalizes heterogeneous per-gateway model pricing into a
// single comparable unit: USD per million tokens.
//
// Upstream gateways report prices in three different unit conventions:
//
//   - per-token (the default; OpenRouter and unlisted gateways)
//   - per-million-tokens (Fireworks, Together, and similar)
//   - per-billion-tokens (NEAR)
//
// The Normalizer converts any raw price into per-million-tokens, detects
// likely unit mis-registrations (a converted value above the mismatch
// threshold), and caps the result so a unit bug can never surface an absurd
// figure in the UI.
//
// Display formatting and filter/sort values share one normalization path.
// This is a correctness requirement: independent conversions previously
// produced filter results inconsistent with displayed prices.
package pricing
