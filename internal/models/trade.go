// ============================================================================
// models/trade.go
// ============================================================================
package models

import "time"

// Trade sides
const (
	SideInitialize = "initialize"
	SideBuy        = "buy"
	SideSell       = "sell"
)

// TradeEvent is emitted after a pool operation commits.
type TradeEvent struct {
	Mint         string    `json:"mint"`
	Pool         string    `json:"pool"`
	Side         string    `json:"side"`
	Trader       string    `json:"trader"`
	BaseAmount   uint64    `json:"base_amount"`  // native in (buy, initialize) or out (sell)
	QuoteAmount  uint64    `json:"quote_amount"` // token out (buy) or in (sell, initialize)
	ReserveBase  uint64    `json:"reserve_base"`
	ReserveQuote uint64    `json:"reserve_quote"`
	InvariantK   string    `json:"invariant_k"`
	Timestamp    time.Time `json:"timestamp"`
}
