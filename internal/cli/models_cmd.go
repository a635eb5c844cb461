// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/gatewayz-core/internal/cache"
	"github.com/jeranaias/gatewayz-core/internal/catalog"
	"github.com/jeranaias/gatewayz-core/internal/config"
	"github.com/jeranaias/gatewayz-core/internal/pricing"
)

// HandleModels lists a gateway's model catalog with normalized prices.
//
// Usage: gatewayz models <gateway> [--free] [--max-price N] [--sort] [--no-cache]
func HandleModels(args []string) error {
	parser := NewArgParser(args)
	gateway := parser.Positional(0)
	if gateway == "" {
		return fmt.Errorf("usage: gatewayz models <gateway> [--free] [--max-price N] [--sort]")
	}

	cfg := loadConfig()
	normalizer := pricing.NewNormalizer(pricing.Config{
		PerMillionGateways: cfg.Pricing.PerMillionGateways,
		PerBillionGateways: cfg.Pricing.PerBillionGateways,
		DisplayCap:         cfg.Pricing.DisplayCap,
		MismatchThreshold:  cfg.Pricing.MismatchThreshold,
	})

	var catalogCache *cache.Cache
	if !parser.BoolFlag("no-cache") {
		backend, err := catalogBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache disabled: %v\n", err)
		} else {
			catalogCache = cache.New(backend, cfg.CatalogTTL())
		}
	}

	client := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.Catalog.BaseURL,
		Normalizer: normalizer,
		Cache:      catalogCache,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := client.Models(ctx, gateway)
	if err != nil {
		return err
	}

	if parser.BoolFlag("free") {
		models = catalog.FilterFree(models)
	}
	if maxPrice := parser.FloatFlag("max-price", -1); maxPrice >= 0 {
		models = client.FilterMaxPromptPrice(models, maxPrice)
	}
	if parser.BoolFlag("sort") {
		client.SortByPromptPrice(models)
	}

	fmt.Printf("%-50s %12s %12s\n", "MODEL", "PROMPT/1M", "COMPL/1M")
	for _, m := range models {
		fmt.Printf("%-50s %12s %12s\n",
			m.ID,
			displayOrDash(normalizer, m.Pricing.Prompt, m.SourceGateway),
			displayOrDash(normalizer, m.Pricing.Completion, m.SourceGateway))
	}
	fmt.Printf("\n%d models\n", len(models))
	return nil
}

// catalogBackend picks the configured cache backend: file-backed when a
// cache directory is set (so repeated invocations share listings),
// in-memory otherwise.
func catalogBackend(cfg *config.Config) (cache.Backend, error) {
	if cfg.Catalog.CacheDir != "" {
		return cache.NewFileBackend(cfg.Catalog.CacheDir)
	}
	return cache.NewMemoryBackend(), nil
}

// displayOrDash formats a price for the table, with "-" for unpriced models.
func displayOrDash(n *pricing.Normalizer, raw, gateway string) string {
	if s, ok := n.FormatForDisplay(raw, gateway); ok {
		return "$" + s
	}
	return "-"
}
