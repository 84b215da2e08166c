package exchange

import (
	"context"
	"fmt"

	"github.com/kairoslabs/perpsentinel/internal/domain"
)

type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	StopPrice float64 `json:"stop_price,omitempty"`
	ValidSec int     `json:"valid_sec,omitempty"`
	ReduceOnly bool  `json:"reduce_only,omitempty"`
}

type orderResponseWire struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	FilledPrice float64 `json:"filled_price"`
	FilledQty   float64 `json:"filled_qty"`
}

func (w orderResponseWire) toResult() *domain.OrderResult {
	return &domain.OrderResult{
		OrderID:     w.OrderID,
		Status:      w.Status,
		FilledPrice: w.FilledPrice,
		FilledQty:   w.FilledQty,
	}
}

// PlaceMarketOrder submits a market order for immediate execution.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	var out orderResponseWire
	req := orderRequest{Symbol: symbol, Side: string(side), Type: "market", Quantity: quantity}
	if err := c.do(ctx, "POST", "/api/v1/order", req, &out); err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

// PlaceLimitOrder submits a limit order good for validSec seconds (§4.6:
// high-vol limit orders use venue-side expiry via valid_sec).
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64, validSec int) (*domain.OrderResult, error) {
	var out orderResponseWire
	req := orderRequest{Symbol: symbol, Side: string(side), Type: "limit", Quantity: quantity, Price: price, ValidSec: validSec}
	if err := c.do(ctx, "POST", "/api/v1/order", req, &out); err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

// PlaceStopLoss submits a reduce-only stop order protecting an open position.
func (c *Client) PlaceStopLoss(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	var out orderResponseWire
	req := orderRequest{Symbol: symbol, Side: string(side.Opposite()), Type: "stop_market", Quantity: quantity, StopPrice: price, ReduceOnly: true}
	if err := c.do(ctx, "POST", "/api/v1/order", req, &out); err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

// PlaceTakeProfit submits a reduce-only take-profit order.
func (c *Client) PlaceTakeProfit(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (*domain.OrderResult, error) {
	var out orderResponseWire
	req := orderRequest{Symbol: symbol, Side: string(side.Opposite()), Type: "take_profit_market", Quantity: quantity, StopPrice: price, ReduceOnly: true}
	if err := c.do(ctx, "POST", "/api/v1/order", req, &out); err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

type ocoRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	SLPrice  float64 `json:"sl_trigger_price"`
	TPPrice  float64 `json:"tp_trigger_price"`
	ReduceOnly bool  `json:"reduce_only"`
}

type ocoResponseWire struct {
	AlgoID string `json:"algo_id"`
}

// PlaceOCO submits the SL and TP legs as one atomic one-cancels-other algo
// order (§4.8 step 2). On success the venue returns a single algo id that
// protects both legs.
func (c *Client) PlaceOCO(ctx context.Context, symbol string, side domain.Side, quantity, slPrice, tpPrice float64) (*domain.AlgoOrderIDs, error) {
	var out ocoResponseWire
	req := ocoRequest{
		Symbol: symbol, Side: string(side.Opposite()), Type: "oco", Quantity: quantity,
		SLPrice: slPrice, TPPrice: tpPrice, ReduceOnly: true,
	}
	if err := c.do(ctx, "POST", "/api/v1/order/algo", req, &out); err != nil {
		return nil, err
	}
	if out.AlgoID == "" {
		return nil, fmt.Errorf("venue returned an empty OCO algo id")
	}
	return &domain.AlgoOrderIDs{SLID: out.AlgoID, TPID: out.AlgoID}, nil
}

// CancelOrder cancels an open order by ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	path := fmt.Sprintf("/api/v1/order?symbol=%s&order_id=%s", symbol, orderID)
	return c.do(ctx, "DELETE", path, nil, nil)
}

// UpdateStopLoss cancels the existing stop order (if any) and places a new
// one at newPrice. The venue doesn't support in-place price amendment, so
// this is cancel-then-replace (§4.8's update_stop_loss operation).
func (c *Client) UpdateStopLoss(ctx context.Context, symbol, orderID string, newPrice float64) (*domain.OrderResult, error) {
	if orderID != "" {
		_ = c.CancelOrder(ctx, symbol, orderID)
	}
	var out orderResponseWire
	req := orderRequest{Symbol: symbol, Type: "stop_market", StopPrice: newPrice, ReduceOnly: true}
	if err := c.do(ctx, "POST", "/api/v1/order", req, &out); err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

// OpenPositions lists all positions currently open on the venue, used for
// startup reconciliation (§4.7 step 1).
func (c *Client) OpenPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	var out []domain.VenuePosition
	if err := c.do(ctx, "GET", "/api/v1/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenOrders lists open orders for a symbol (used to find orphaned SL/TP
// orders during reconciliation).
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.VenueOrder, error) {
	var out []domain.VenueOrder
	path := fmt.Sprintf("/api/v1/open-orders?symbol=%s", symbol)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the available margin balance in the account's quote currency.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var out struct {
		Available float64 `json:"available"`
	}
	if err := c.do(ctx, "GET", "/api/v1/balance", nil, &out); err != nil {
		return 0, err
	}
	return out.Available, nil
}
