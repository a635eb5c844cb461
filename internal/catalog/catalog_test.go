// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gatewayz-core/internal/cache"
	"github.com/jeranaias/gatewayz-core/internal/pricing"
)

const openrouterListing = `{
	"data": [
		{"id": "meta-llama/llama-3-8b:free", "source_gateway": "openrouter",
		 "pricing": {"prompt": "0", "completion": "0"}},
		{"id": "anthropic/claude-sonnet", "source_gateway": "openrouter",
		 "pricing": {"prompt": "0.000003", "completion": "0.000015"}},
		{"id": "openai/gpt-4o-mini", "source_gateway": "openrouter",
		 "pricing": {"prompt": 0.00000015, "completion": 0.0000006}}
	]
}`

func testCatalog(t *testing.T, handler http.Handler, c *cache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		Cache:   c,
		Logger:  log.New(&bytes.Buffer{}, "", 0),
	})
}

// =============================================================================
// FETCH AND PARSE TESTS
// =============================================================================

func TestModels_ParsesStringAndNumberPricing(t *testing.T) {
	var gotQuery string
	c := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(openrouterListing))
	}), nil)

	models, err := c.Models(context.Background(), "openrouter")
	require.NoError(t, err)
	require.Equal(t, "gateway=openrouter", gotQuery)
	require.Len(t, models, 3)

	// String-valued pricing.
	require.Equal(t, "0.000003", models[1].Pricing.Prompt)
	// Number-valued pricing is carried as its decimal token.
	require.Equal(t, "0.00000015", models[2].Pricing.Prompt)

	display, ok := c.Normalizer().FormatForDisplay(models[2].Pricing.Prompt, models[2].SourceGateway)
	require.True(t, ok)
	require.Equal(t, "0.15", display)
}

func TestModels_RequiresGateway(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused", Logger: log.New(&bytes.Buffer{}, "", 0)})
	_, err := c.Models(context.Background(), "")
	require.ErrorIs(t, err, ErrGatewayRequired)
}

func TestModels_BackendErrorSurfaces(t *testing.T) {
	c := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	}), nil)

	_, err := c.Models(context.Background(), "near")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

// =============================================================================
// CACHE BEHAVIOR TESTS
// =============================================================================

func TestModels_SecondCallServedFromCache(t *testing.T) {
	var fetches int32
	listingCache := cache.New(cache.NewMemoryBackend(), time.Hour)
	c := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(openrouterListing))
	}), listingCache)

	first, err := c.Models(context.Background(), "openrouter")
	require.NoError(t, err)
	second, err := c.Models(context.Background(), "openrouter")
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&fetches), "fresh listing must come from cache")
	require.Equal(t, first, second)
}

func TestModels_DistinctGatewaysCachedSeparately(t *testing.T) {
	var fetches int32
	listingCache := cache.New(cache.NewMemoryBackend(), time.Hour)
	c := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(`{"data":[{"id":"m","pricing":{"prompt":"0.20","completion":"0.80"}}]}`))
	}), listingCache)

	_, err := c.Models(context.Background(), "fireworks")
	require.NoError(t, err)
	_, err = c.Models(context.Background(), "groq")
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&fetches))
}

func TestModels_GatewayFilledFromQueryWhenAbsent(t *testing.T) {
	c := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"m","pricing":{"prompt":"0.20","completion":"0.80"}}]}`))
	}), nil)

	models, err := c.Models(context.Background(), "fireworks")
	require.NoError(t, err)
	require.Equal(t, "fireworks", models[0].SourceGateway)
}

// =============================================================================
// FILTER / SORT CONSISTENCY
// =============================================================================

func TestSortAndFilter_AgreeWithDisplay(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused", Logger: log.New(&bytes.Buffer{}, "", 0)})

	models := []pricing.ModelPricingInfo{
		{ID: "expensive", SourceGateway: "openrouter", Pricing: pricing.PricePair{Prompt: "0.000015"}}, // $15/MTok
		{ID: "cheap", SourceGateway: "fireworks", Pricing: pricing.PricePair{Prompt: "0.20"}},          // $0.20/MTok
		{ID: "mid", SourceGateway: "near", Pricing: pricing.PricePair{Prompt: "3000"}},                 // $3/MTok
	}

	c.SortByPromptPrice(models)
	require.Equal(t, []string{"cheap", "mid", "expensive"}, []string{models[0].ID, models[1].ID, models[2].ID})

	// A $5/MTok budget keeps exactly the models whose *displayed* price is
	// at most 5.00.
	kept := c.FilterMaxPromptPrice(models, 5)
	require.Len(t, kept, 2)
	for _, m := range kept {
		display, ok := c.Normalizer().FormatForDisplay(m.Pricing.Prompt, m.SourceGateway)
		require.True(t, ok)
		displayed, err := strconv.ParseFloat(display, 64)
		require.NoError(t, err)
		require.LessOrEqual(t, displayed, 5.0)
	}
}

func TestFilterFree(t *testing.T) {
	models := []pricing.ModelPricingInfo{
		{ID: "meta-llama/llama-3-8b:free", SourceGateway: "openrouter"},
		{ID: "paid-model", SourceGateway: "openrouter", IsFree: true},
		{ID: "other:free", SourceGateway: "fireworks"},
	}

	free := FilterFree(models)
	require.Len(t, free, 1)
	require.Equal(t, "meta-llama/llama-3-8b:free", free[0].ID)
}
