// Package orders implements the Order Executor (C8): atomic entry+OCO
// placement with rollback, opposite-side handling, venue precision and
// minimum-notional enforcement, stop-loss updates, and daily throttles
// (§4.8).
package orders

import (
	"math"
	"strings"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

// RoundResult is the outcome of applying venue precision to a proposed
// order, including the machine-readable skip reason when the order
// cannot be placed at all.
type RoundResult struct {
	Price     float64
	Quantity  float64
	Skip      bool
	SkipReason string
}

// ApplyPrecision rounds price/quantity to the venue's tick/step size and
// rejects orders below minimum notional or minimum quantity, or whose
// symbol names a delivery (dated) contract rather than a perpetual
// (§4.8 "Precision and minimums").
func ApplyPrecision(symbol string, price, quantity float64, prec domain.SymbolPrecision) RoundResult {
	if isDeliveryContract(symbol) {
		return RoundResult{Skip: true, SkipReason: "skipped_delivery"}
	}

	roundedPrice := roundToStep(price, prec.TickSize)
	roundedQty := roundToStep(quantity, prec.StepSize)

	notional := roundedPrice * roundedQty
	if prec.MinNotional > 0 && notional < prec.MinNotional {
		return RoundResult{Skip: true, SkipReason: "skipped_min_amount"}
	}
	if prec.MinQuantity > 0 && roundedQty < prec.MinQuantity {
		return RoundResult{Skip: true, SkipReason: "skipped_min_amount"}
	}

	return RoundResult{Price: roundedPrice, Quantity: roundedQty}
}

func roundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Round(value/step) * step
}

// isDeliveryContract flags venue symbols carrying a dated-contract suffix
// (e.g. "BTCUSD_250627"), which the perpetual-only pipeline never trades.
func isDeliveryContract(symbol string) bool {
	for _, r := range symbol {
		if r == '_' {
			return true
		}
	}
	return strings.Contains(symbol, "-") && !strings.HasSuffix(symbol, "-PERP")
}
