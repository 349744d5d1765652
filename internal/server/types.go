package server

import (
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/curve"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/ledger"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Reason  string `json:"reason,omitempty"`  // Machine-readable pool error code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

// InitializePoolRequest creates the pool for Mint funded by Depositor.
type InitializePoolRequest struct {
	Mint        string `json:"mint"`
	Depositor   string `json:"depositor"`
	AmountBase  uint64 `json:"amount_base"`
	AmountQuote uint64 `json:"amount_quote"`
}

// BuyRequest takes DesiredQuoteOut tokens. MaxBaseIn wins over SlippageBps
// when both are set.
type BuyRequest struct {
	Trader          string `json:"trader"`
	DesiredQuoteOut uint64 `json:"desired_quote_out"`
	MaxBaseIn       uint64 `json:"max_base_in,omitempty"`
	SlippageBps     uint16 `json:"slippage_bps,omitempty"`
	MaxImpactBps    uint16 `json:"max_impact_bps,omitempty"`
}

// SellRequest gives QuoteIn tokens. MinBaseOut wins over SlippageBps.
type SellRequest struct {
	Trader       string `json:"trader"`
	QuoteIn      uint64 `json:"quote_in"`
	MinBaseOut   uint64 `json:"min_base_out,omitempty"`
	SlippageBps  uint16 `json:"slippage_bps,omitempty"`
	MaxImpactBps uint16 `json:"max_impact_bps,omitempty"`
}

// AirdropRequest credits the in-process balance book (dev mode only).
type AirdropRequest struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint,omitempty"`
	Native uint64 `json:"native"`
	Tokens uint64 `json:"tokens"`
}

type TradeResponse struct {
	Side        string          `json:"side"`
	Trader      string          `json:"trader"`
	BaseAmount  uint64          `json:"base_amount"`
	QuoteAmount uint64          `json:"quote_amount"`
	Pool        models.PoolView `json:"pool"`
}

type QuoteResponse struct {
	Side              string  `json:"side"`
	BaseAmount        uint64  `json:"base_amount"`
	QuoteAmount       uint64  `json:"quote_amount"`
	ReserveBaseAfter  uint64  `json:"reserve_base_after"`
	ReserveQuoteAfter uint64  `json:"reserve_quote_after"`
	InvariantKAfter   string  `json:"invariant_k_after"`
	SpotPriceBefore   float64 `json:"spot_price_before"`
	SpotPriceAfter    float64 `json:"spot_price_after"`
	PriceImpact       float64 `json:"price_impact"`
	SlippageBps       uint16  `json:"slippage_bps,omitempty"`
	SlippageLimit     uint64  `json:"slippage_limit,omitempty"` // max native in (buy) or min native out (sell)
}

func newTradeResponse(r *ledger.Receipt) TradeResponse {
	return TradeResponse{
		Side:        r.Side,
		Trader:      r.Trader.String(),
		BaseAmount:  r.BaseAmount,
		QuoteAmount: r.QuoteAmount,
		Pool:        r.State.View(),
	}
}

func newQuoteResponse(q *curve.Quote) QuoteResponse {
	return QuoteResponse{
		Side:              q.Side,
		BaseAmount:        q.BaseAmount,
		QuoteAmount:       q.QuoteAmount,
		ReserveBaseAfter:  q.ReserveBaseAfter,
		ReserveQuoteAfter: q.ReserveQuoteAfter,
		InvariantKAfter:   q.InvariantKAfter.ToBig().String(),
		SpotPriceBefore:   q.SpotPriceBefore,
		SpotPriceAfter:    q.SpotPriceAfter,
		PriceImpact:       q.PriceImpact,
	}
}
