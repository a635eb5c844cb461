// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"

	"github.com/jeranaias/gatewayz-core/internal/pricing"
)

// HandlePricing normalizes one raw price the way the catalog display does,
// printing each representation so unit mismatches are obvious at a glance.
//
// Usage: gatewayz pricing <gateway> <raw-price>
func HandlePricing(args []string) error {
	parser := NewArgParser(args)
	gateway := parser.Positional(0)
	raw := parser.Positional(1)
	if gateway == "" || raw == "" {
		return fmt.Errorf("usage: gatewayz pricing <gateway> <raw-price>")
	}

	cfg := loadConfig()
	normalizer := pricing.NewNormalizer(pricing.Config{
		PerMillionGateways: cfg.Pricing.PerMillionGateways,
		PerBillionGateways: cfg.Pricing.PerBillionGateways,
		DisplayCap:         cfg.Pricing.DisplayCap,
		MismatchThreshold:  cfg.Pricing.MismatchThreshold,
	})

	fmt.Printf("gateway:        %s (%s)\n", gateway, normalizer.UnitFor(gateway))
	fmt.Printf("raw:            %s\n", raw)

	display, ok := normalizer.FormatForDisplay(raw, gateway)
	if !ok {
		fmt.Println("display:        unpriced (unparsable or negative)")
		return nil
	}
	fmt.Printf("display:        $%s per 1M tokens\n", display)

	value, _ := strconv.ParseFloat(raw, 64)
	fmt.Printf("per-million:    %g\n", normalizer.NormalizeToPerMillion(value, gateway))
	fmt.Printf("per-token:      %g\n", normalizer.PerTokenPrice(raw, gateway))
	return nil
}
