// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog fetches per-gateway model listings and prepares them for
// display and filtering.
//
// The catalog endpoint returns raw ModelPricingInfo records whose price
// fields arrive as strings or bare numbers depending on the gateway.
// Listings are cached with a TTL so renders do not refetch, and all
// filter/sort helpers go through the shared pricing.Normalizer so the
// values driving a filter are the values the user sees.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/gatewayz-core/internal/cache"
	"github.com/jeranaias/gatewayz-core/internal/pricing"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultCacheTTL is how long a gateway listing stays fresh.
	DefaultCacheTTL = 5 * time.Minute

	// maxResponseSize bounds a catalog response body.
	maxResponseSize = 20 << 20 // 20MB; some gateways list thousands of models
)

// ErrGatewayRequired is returned when Models is called without a gateway.
var ErrGatewayRequired = errors.New("catalog: gateway is required")

// =============================================================================
// CLIENT
// =============================================================================

// Config holds catalog client configuration.
type Config struct {
	// BaseURL is the catalog API root. Required.
	BaseURL string

	// Normalizer prices the listed models. Nil gets a default instance.
	Normalizer *pricing.Normalizer

	// Cache stores listings per gateway. Nil disables caching.
	Cache *cache.Cache

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client

	// Logger receives fetch diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// Client fetches and prices model catalogs. Safe for concurrent use.
type Client struct {
	baseURL    string
	normalizer *pricing.Normalizer
	cache      *cache.Cache
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a catalog client from cfg.
func NewClient(cfg Config) *Client {
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = pricing.NewNormalizer(pricing.Config{})
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		normalizer: normalizer,
		cache:      cfg.Cache,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Normalizer exposes the shared normalizer so callers price individual
// fields with the exact same logic the catalog helpers use.
func (c *Client) Normalizer() *pricing.Normalizer {
	return c.normalizer
}

// =============================================================================
// FETCH
// =============================================================================

// wireModel tolerates pricing fields arriving as strings or bare numbers.
type wireModel struct {
	ID            string `json:"id"`
	SourceGateway string `json:"source_gateway"`
	Pricing       struct {
		Prompt     json.RawMessage `json:"prompt"`
		Completion json.RawMessage `json:"completion"`
	} `json:"pricing"`
	IsFree bool `json:"is_free,omitempty"`
}

// Models returns the pricing records for one gateway, from cache when
// fresh. Records are rebuilt on every fetch and never persisted beyond the
// cache TTL.
func (c *Client) Models(ctx context.Context, gateway string) ([]pricing.ModelPricingInfo, error) {
	if gateway == "" {
		return nil, ErrGatewayRequired
	}

	cacheKey := "models:" + strings.ToLower(gateway)
	if c.cache != nil {
		if data, ok := c.cache.Get(cacheKey); ok {
			var models []pricing.ModelPricingInfo
			if err := json.Unmarshal(data, &models); err == nil {
				return models, nil
			}
			// Corrupt cache entry: drop it and refetch.
			_ = c.cache.Delete(cacheKey)
		}
	}

	models, err := c.fetch(ctx, gateway)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(models); err == nil {
			if err := c.cache.Set(cacheKey, data); err != nil {
				c.logger.Printf("catalog: caching %s listing failed: %v", gateway, err)
			}
		}
	}
	return models, nil
}

// fetch performs the HTTP round-trip for one gateway listing.
func (c *Client) fetch(ctx context.Context, gateway string) ([]pricing.ModelPricingInfo, error) {
	url := fmt.Sprintf("%s/v1/models?gateway=%s", c.baseURL, gateway)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch %s listing: %w", gateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: %s listing returned %d", gateway, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s listing: %w", gateway, err)
	}

	var payload struct {
		Data []wireModel `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog: parse %s listing: %w", gateway, err)
	}

	models := make([]pricing.ModelPricingInfo, 0, len(payload.Data))
	for _, wm := range payload.Data {
		gw := wm.SourceGateway
		if gw == "" {
			gw = gateway
		}
		models = append(models, pricing.ModelPricingInfo{
			ID:            wm.ID,
			SourceGateway: gw,
			Pricing: pricing.PricePair{
				Prompt:     rawToPriceString(wm.Pricing.Prompt),
				Completion: rawToPriceString(wm.Pricing.Completion),
			},
			IsFree: wm.IsFree,
		})
	}
	return models, nil
}

// rawToPriceString renders a raw JSON price field (string, number, or
// absent) into the string form the normalizer parses.
func rawToPriceString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Bare number: the raw token is already its decimal form.
	return strings.TrimSpace(string(raw))
}

// =============================================================================
// FILTER AND SORT HELPERS
// =============================================================================

// SortByPromptPrice orders models cheapest-first by normalized per-token
// prompt price. Sorting uses the same normalization as display.
func (c *Client) SortByPromptPrice(models []pricing.ModelPricingInfo) {
	sort.SliceStable(models, func(i, j int) bool {
		pi := c.normalizer.PerTokenPrice(models[i].Pricing.Prompt, models[i].SourceGateway)
		pj := c.normalizer.PerTokenPrice(models[j].Pricing.Prompt, models[j].SourceGateway)
		return pi < pj
	})
}

// FilterMaxPromptPrice keeps models whose normalized prompt price is at
// most maxPerMillion (in USD per million tokens).
func (c *Client) FilterMaxPromptPrice(models []pricing.ModelPricingInfo, maxPerMillion float64) []pricing.ModelPricingInfo {
	out := make([]pricing.ModelPricingInfo, 0, len(models))
	for _, m := range models {
		perToken := c.normalizer.PerTokenPrice(m.Pricing.Prompt, m.SourceGateway)
		if perToken*1_000_000 <= maxPerMillion {
			out = append(out, m)
		}
	}
	return out
}

// FilterFree keeps only free models per the trusted suffix convention.
func FilterFree(models []pricing.ModelPricingInfo) []pricing.ModelPricingInfo {
	out := make([]pricing.ModelPricingInfo, 0)
	for _, m := range models {
		if pricing.IsFreeModel(m) {
			out = append(out, m)
		}
	}
	return out
}
