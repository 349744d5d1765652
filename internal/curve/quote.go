package curve

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

const bpsDenominator = 10000

// Quote describes a priced trade without applying it.
type Quote struct {
	Side        string
	BaseAmount  uint64 // native paid (buy) or received (sell)
	QuoteAmount uint64 // tokens received (buy) or paid (sell)

	ReserveBaseBefore  uint64
	ReserveQuoteBefore uint64
	ReserveBaseAfter   uint64
	ReserveQuoteAfter  uint64
	InvariantKAfter    *uint256.Int

	// Display-only ratios; settlement never uses them.
	SpotPriceBefore float64 // base per token
	SpotPriceAfter  float64
	PriceImpact     float64 // 0.01 = 1%
}

// QuoteBuy prices taking desiredQuoteOut tokens from the pool.
func QuoteBuy(reserveBase, reserveQuote, desiredQuoteOut uint64) (*Quote, error) {
	baseIn, err := PriceBuy(reserveBase, reserveQuote, desiredQuoteOut)
	if err != nil {
		return nil, err
	}
	newBase := reserveBase + baseIn
	newQuote := reserveQuote - desiredQuoteOut
	q := &Quote{
		Side:               models.SideBuy,
		BaseAmount:         baseIn,
		QuoteAmount:        desiredQuoteOut,
		ReserveBaseBefore:  reserveBase,
		ReserveQuoteBefore: reserveQuote,
		ReserveBaseAfter:   newBase,
		ReserveQuoteAfter:  newQuote,
		InvariantKAfter:    InvariantK(newBase, newQuote),
	}
	q.fillPrices()
	return q, nil
}

// QuoteSell prices selling quoteIn tokens to the pool.
func QuoteSell(reserveBase, reserveQuote, quoteIn uint64) (*Quote, error) {
	baseOut, err := PriceSell(reserveBase, reserveQuote, quoteIn)
	if err != nil {
		return nil, err
	}
	newBase := reserveBase - baseOut
	newQuote := reserveQuote + quoteIn
	q := &Quote{
		Side:               models.SideSell,
		BaseAmount:         baseOut,
		QuoteAmount:        quoteIn,
		ReserveBaseBefore:  reserveBase,
		ReserveQuoteBefore: reserveQuote,
		ReserveBaseAfter:   newBase,
		ReserveQuoteAfter:  newQuote,
		InvariantKAfter:    InvariantK(newBase, newQuote),
	}
	q.fillPrices()
	return q, nil
}

func (q *Quote) fillPrices() {
	q.SpotPriceBefore = ratio(q.ReserveBaseBefore, q.ReserveQuoteBefore)
	q.SpotPriceAfter = ratio(q.ReserveBaseAfter, q.ReserveQuoteAfter)
	q.PriceImpact = PriceImpact(q.ReserveBaseBefore, q.ReserveQuoteBefore, q.BaseAmount, q.QuoteAmount)
}

// PriceImpact is |executionRate / spotBefore - 1| for a trade of baseAmount
// against quoteAmount on a pool holding (reserveBase, reserveQuote).
func PriceImpact(reserveBase, reserveQuote, baseAmount, quoteAmount uint64) float64 {
	spot := ratio(reserveBase, reserveQuote)
	if spot == 0 {
		return 0
	}
	return math.Abs(ratio(baseAmount, quoteAmount)/spot - 1)
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(
		new(big.Int).SetUint64(num),
		new(big.Int).SetUint64(den),
	).Float64()
	return f
}

// ApplySlippage returns the minimum acceptable output for a tolerance in bps.
func ApplySlippage(amountOut uint64, slippageBps uint16) uint64 {
	if slippageBps >= bpsDenominator {
		return 0
	}

	// minOut = amountOut * (10000 - slippageBps) / 10000
	result := new(uint256.Int).Mul(
		uint256.NewInt(amountOut),
		uint256.NewInt(bpsDenominator-uint64(slippageBps)),
	)
	result.Div(result, uint256.NewInt(bpsDenominator))
	return result.Uint64()
}

// MaxWithSlippage returns the maximum acceptable input for a tolerance in bps, rounded up.
func MaxWithSlippage(amountIn uint64, slippageBps uint16) (uint64, error) {
	// maxIn = ceil(amountIn * (10000 + slippageBps) / 10000)
	n := new(uint256.Int).Mul(
		uint256.NewInt(amountIn),
		uint256.NewInt(bpsDenominator+uint64(slippageBps)),
	)
	maxIn := ceilDiv(n, uint256.NewInt(bpsDenominator))
	if !maxIn.IsUint64() {
		return 0, fmt.Errorf("%w: max input for %d at %d bps", models.ErrArithmeticOverflow, amountIn, slippageBps)
	}
	return maxIn.Uint64(), nil
}

// ValidatePriceImpact checks if price impact exceeds threshold
func ValidatePriceImpact(priceImpact float64, maxImpactBps uint16) error {
	maxImpact := float64(maxImpactBps) / bpsDenominator

	if priceImpact > maxImpact {
		return fmt.Errorf("%w: price impact %.4f%% exceeds max %.4f%%",
			models.ErrSlippageExceeded, priceImpact*100, maxImpact*100)
	}

	return nil
}
