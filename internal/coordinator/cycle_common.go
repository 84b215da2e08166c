package coordinator

import (
	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/modules/orders"
)

// roundOrSkip applies venue tick/step precision and minimum-size rejection
// to a proposed (price, quantity) pair before it reaches the executor
// (§4.8 "Precision & minimums").
func roundOrSkip(symbol string, price, quantity float64, prec domain.SymbolPrecision) orders.RoundResult {
	return orders.ApplyPrecision(symbol, price, quantity, prec)
}

func (c *Coordinator) rememberTradeID(symbol, tradeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeID[symbol] = tradeID
}

func (c *Coordinator) tradeIDFor(symbol string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tradeID[symbol]
	return id, ok
}

func (c *Coordinator) forgetTradeID(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tradeID, symbol)
}
