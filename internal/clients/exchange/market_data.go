package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

type candleWire struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Candles fetches OHLCV candles for symbol at the given interval ("1m",
// "5m", "15m", "1h", ...), oldest-first, most recent limit bars.
func (c *Client) Candles(ctx context.Context, symbol string, interval string, limit int) (domain.Candles, error) {
	var wire []candleWire
	path := fmt.Sprintf("/api/v1/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	if err := c.do(ctx, "GET", path, nil, &wire); err != nil {
		return nil, err
	}

	out := make(domain.Candles, len(wire))
	for i, w := range wire {
		out[i] = domain.Candle{
			OpenTime: time.UnixMilli(w.OpenTime),
			Open:     w.Open,
			High:     w.High,
			Low:      w.Low,
			Close:    w.Close,
			Volume:   w.Volume,
		}
	}
	return out, nil
}

// FundingRate fetches the latest funding rate for a perpetual symbol.
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Rate float64 `json:"funding_rate"`
	}
	path := fmt.Sprintf("/api/v1/funding-rate?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return 0, err
	}
	return out.Rate, nil
}

// Ticker24h fetches the rolling 24h window stats for a symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var out domain.Ticker
	path := fmt.Sprintf("/api/v1/ticker/24hr?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	out.Symbol = symbol
	return &out, nil
}

// Universe lists all tradable perpetual-futures symbols on the venue.
func (c *Client) Universe(ctx context.Context) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.do(ctx, "GET", "/api/v1/exchange-info", nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// OrderBookDepth returns the bid-side share of total depth within the
// order book's top levels, used by the hard-rule liquidity gate (§4.4.1).
func (c *Client) OrderBookDepth(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		BidShare float64 `json:"bid_share"`
	}
	path := fmt.Sprintf("/api/v1/depth-summary?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return 0, err
	}
	return out.BidShare, nil
}

// OpenInterest returns the percentage change in open interest over the
// venue's default lookback window, used for smart-money classification.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		ChangePercent float64 `json:"change_percent"`
	}
	path := fmt.Sprintf("/api/v1/open-interest?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return 0, err
	}
	return out.ChangePercent, nil
}

// SymbolPrecision fetches the venue's tick size, step size, and minimum
// notional for a symbol, used to round orders before submission (§4.8).
func (c *Client) SymbolPrecision(ctx context.Context, symbol string) (*domain.SymbolPrecision, error) {
	var out domain.SymbolPrecision
	path := fmt.Sprintf("/api/v1/symbol-info?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
