// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDisplayCap is the maximum normalized price (per million tokens)
	// ever surfaced. Values above it are clamped, not rejected, so a gateway
	// with a mis-registered unit still renders something sane.
	DefaultDisplayCap = 100.0

	// DefaultMismatchThreshold flags a likely unit mis-registration. A
	// per-token gateway whose converted price lands above this is almost
	// certainly reporting per-million values.
	DefaultMismatchThreshold = 1000.0

	// freeSuffix marks OpenRouter's no-cost model variants.
	freeSuffix = ":free"

	// openRouterGateway is the only gateway whose free-model convention is
	// trusted.
	openRouterGateway = "openrouter"

	// tokensPerMillion converts a per-million price back to per-token.
	tokensPerMillion = 1_000_000.0
)

// Unit identifies the pricing unit convention a gateway reports in.
type Unit int

const (
	// UnitPerToken is the default convention: USD per single token.
	UnitPerToken Unit = iota
	// UnitPerMillion is USD per 1,000,000 tokens.
	UnitPerMillion
	// UnitPerBillion is USD per 1,000,000,000 tokens.
	UnitPerBillion
)

// String returns the unit name for diagnostics.
func (u Unit) String() string {
	switch u {
	case UnitPerMillion:
		return "per-million"
	case UnitPerBillion:
		return "per-billion"
	default:
		return "per-token"
	}
}

// defaultPerMillionGateways lists gateways that already report prices per
// million tokens.
var defaultPerMillionGateways = []string{
	"fireworks",
	"featherless",
	"together",
	"deepinfra",
	"groq",
	"chutes",
}

// defaultPerBillionGateways lists gateways that report prices per billion
// tokens.
var defaultPerBillionGateways = []string{
	"near",
}

// =============================================================================
// MODEL PRICING INFO
// =============================================================================

// PricePair holds the raw prompt and completion prices as the gateway
// returned them. Values are strings on the wire; several gateways send
// numbers, which callers should render into strings before construction.
type PricePair struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelPricingInfo describes one catalog entry's pricing as returned by an
// upstream gateway. Entries are rebuilt on every catalog fetch and never
// persisted.
type ModelPricingInfo struct {
	ID            string    `json:"id"`
	SourceGateway string    `json:"source_gateway"`
	Pricing       PricePair `json:"pricing"`

	// IsFree is the backend-provided flag. It is deliberately ignored by
	// IsFreeModel: only the ":free" suffix convention is trusted.
	IsFree bool `json:"is_free,omitempty"`
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Config controls a Normalizer. Zero values fall back to defaults.
type Config struct {
	// PerMillionGateways and PerBillionGateways override the built-in unit
	// membership lists. Gateways on neither list are treated as per-token.
	PerMillionGateways []string
	PerBillionGateways []string

	// DisplayCap clamps the normalized result (default 100).
	DisplayCap float64

	// MismatchThreshold triggers the once-per-gateway diagnostic
	// (default 1000).
	MismatchThreshold float64

	// Logger receives unit-mismatch diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Normalizer converts raw gateway prices into capped per-million figures.
// It is safe for concurrent use. Construct instances explicitly rather than
// sharing a package global so tests can run isolated copies.
type Normalizer struct {
	units      map[string]Unit
	displayCap float64
	threshold  float64
	logger     *log.Logger

	mu     sync.Mutex
	warned map[string]bool // gateways already diagnosed, one log each
}

// NewNormalizer creates a normalizer from cfg.
func NewNormalizer(cfg Config) *Normalizer {
	perMillion := cfg.PerMillionGateways
	if perMillion == nil {
		perMillion = defaultPerMillionGateways
	}
	perBillion := cfg.PerBillionGateways
	if perBillion == nil {
		perBillion = defaultPerBillionGateways
	}

	units := make(map[string]Unit, len(perMillion)+len(perBillion))
	for _, gw := range perMillion {
		units[strings.ToLower(gw)] = UnitPerMillion
	}
	for _, gw := range perBillion {
		units[strings.ToLower(gw)] = UnitPerBillion
	}

	cap := cfg.DisplayCap
	if cap <= 0 {
		cap = DefaultDisplayCap
	}
	threshold := cfg.MismatchThreshold
	if threshold <= 0 {
		threshold = DefaultMismatchThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Normalizer{
		units:      units,
		displayCap: cap,
		threshold:  threshold,
		logger:     logger,
		warned:     make(map[string]bool),
	}
}

// UnitFor returns the unit convention registered for a gateway.
// Unlisted gateways default to per-token.
func (n *Normalizer) UnitFor(gateway string) Unit {
	if u, ok := n.units[strings.ToLower(gateway)]; ok {
		return u
	}
	return UnitPerToken
}

// NormalizeToPerMillion converts a raw price into USD per million tokens,
// clamped to [0, DisplayCap]. Negative and NaN inputs normalize to 0;
// callers that need to distinguish unparsable input should use
// FormatForDisplay or PerTokenPrice.
func (n *Normalizer) NormalizeToPerMillion(raw float64, gateway string) float64 {
	if math.IsNaN(raw) || raw < 0 {
		return 0
	}

	var perMillion float64
	switch n.UnitFor(gateway) {
	case UnitPerMillion:
		perMillion = raw
	case UnitPerBillion:
		perMillion = raw / 1000.0
	default:
		perMillion = raw * tokensPerMillion
	}

	// A converted value this large almost always means the gateway is
	// registered under the wrong unit (per-token when it reports
	// per-million). Diagnose once, then cap and continue: one bad
	// registration must not break the catalog render.
	if perMillion > n.threshold {
		n.warnOnce(gateway, raw, perMillion)
	}

	if perMillion > n.displayCap {
		perMillion = n.displayCap
	}
	return perMillion
}

// FormatForDisplay parses a raw price string and renders the normalized
// per-million figure with two decimals. The second return is false for
// missing, unparsable, or negative input; callers render a placeholder
// instead of crashing the catalog over one bad field.
func (n *Normalizer) FormatForDisplay(raw string, gateway string) (string, bool) {
	v, ok := parsePrice(raw)
	if !ok {
		return "", false
	}
	return strconv.FormatFloat(n.NormalizeToPerMillion(v, gateway), 'f', 2, 64), true
}

// PerTokenPrice returns the normalized, capped per-token price used for
// filtering and sorting. It runs the exact same normalization path as
// FormatForDisplay divided by one million, so filter decisions always agree
// with what the user sees. Unparsable input returns 0.
func (n *Normalizer) PerTokenPrice(raw string, gateway string) float64 {
	v, ok := parsePrice(raw)
	if !ok {
		return 0
	}
	return n.NormalizeToPerMillion(v, gateway) / tokensPerMillion
}

// IsFreeModel reports whether a model is free. A model is free iff its
// source gateway is exactly "openrouter" and its ID carries the ":free"
// suffix. The backend's is_free flag is ignored on purpose: the suffix is
// the only convention we trust.
func IsFreeModel(m ModelPricingInfo) bool {
	return m.SourceGateway == openRouterGateway && strings.HasSuffix(m.ID, freeSuffix)
}

// warnOnce logs the unit-mismatch diagnostic for a gateway the first time
// it is seen, then suppresses repeats.
func (n *Normalizer) warnOnce(gateway string, raw, converted float64) {
	key := strings.ToLower(gateway)

	n.mu.Lock()
	seen := n.warned[key]
	if !seen {
		n.warned[key] = true
	}
	n.mu.Unlock()

	if seen {
		return
	}
	n.logger.Printf("pricing: gateway %q (%s) produced %.2f/MTok from raw %v; unit registration is likely wrong, capping at %.0f",
		gateway, n.UnitFor(gateway), converted, raw, n.displayCap)
}

// parsePrice parses a raw price string. Empty strings, non-numbers, NaN,
// and negative values (some gateways use -1 for dynamic pricing) are
// unparsable.
func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0, false
	}
	return v, true
}
