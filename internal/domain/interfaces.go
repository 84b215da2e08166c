package domain

import "context"

// ExchangeClient abstracts away the venue's REST API so the pipeline
// components never import the concrete HTTP client directly — this breaks
// the import cycle between internal/clients/exchange and the internal/
// modules packages that need to both construct orders and be constructed
// with a client for testing (fakes satisfy this interface).
type ExchangeClient interface {
	Candles(ctx context.Context, symbol string, interval string, limit int) (Candles, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
	Ticker24h(ctx context.Context, symbol string) (*Ticker, error)
	Universe(ctx context.Context) ([]string, error)
	OrderBookDepth(ctx context.Context, symbol string) (float64, error)
	OpenInterest(ctx context.Context, symbol string) (float64, error)

	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (*OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, quantity, price float64, validSec int) (*OrderResult, error)
	PlaceStopLoss(ctx context.Context, symbol string, side Side, quantity, price float64) (*OrderResult, error)
	PlaceTakeProfit(ctx context.Context, symbol string, side Side, quantity, price float64) (*OrderResult, error)
	// PlaceOCO submits the SL and TP legs as a single one-cancels-other algo
	// order (§4.8 step 2). Venues that support it fill both ids from the one
	// algo order; callers fall back to two separate Place calls on error.
	PlaceOCO(ctx context.Context, symbol string, side Side, quantity, slPrice, tpPrice float64) (*AlgoOrderIDs, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	UpdateStopLoss(ctx context.Context, symbol, orderID string, newPrice float64) (*OrderResult, error)

	OpenPositions(ctx context.Context) ([]VenuePosition, error)
	OpenOrders(ctx context.Context, symbol string) ([]VenueOrder, error)
	Balance(ctx context.Context) (float64, error)

	SymbolPrecision(ctx context.Context, symbol string) (*SymbolPrecision, error)
}

// Ticker is a venue's 24h rolling-window snapshot for one symbol.
type Ticker struct {
	Symbol         string
	LastPrice      float64
	Change24h      float64
	QuoteVolume24h float64
}

// OrderResult is the venue's response to an order placement/update call.
type OrderResult struct {
	OrderID     string
	Status      string
	FilledPrice float64
	FilledQty   float64
}

// VenuePosition is a position as reported by the venue, used for startup
// reconciliation (§4.7 step 1).
type VenuePosition struct {
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64
}

// VenueOrder is an open order as reported by the venue.
type VenueOrder struct {
	OrderID string
	Symbol  string
	Type    string // "stop_loss", "take_profit", "limit"
	Price   float64
}

// SymbolPrecision carries the venue's tick size, step size, and minimum
// notional for one symbol, used by the order executor's rounding and
// minimum-size checks (§4.8).
type SymbolPrecision struct {
	TickSize      float64
	StepSize      float64
	MinNotional   float64
	MinQuantity   float64
}

// Reviewer abstracts the cheap/premium LLM endpoints so the review,
// watcher, and high-vol packages depend on one small interface instead of
// the concrete HTTP client (§4.4.2, §4.5, §4.6, §4.7 step 9).
type Reviewer interface {
	ReviewSignal(ctx context.Context, prompt string, useCheap bool) (*ReviewResult, error)
}
