package ledger

import (
	"fmt"
	"math/bits"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/curve"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// ApplyInitialize seeds an empty pool with both reserves.
func ApplyInitialize(state *models.PoolState, amountBase, amountQuote uint64) error {
	if amountBase == 0 || amountQuote == 0 {
		return fmt.Errorf("%w: initial reserves must be positive (base=%d quote=%d)",
			models.ErrInvalidAmount, amountBase, amountQuote)
	}
	state.ReserveBase = amountBase
	state.ReserveQuote = amountQuote
	state.InvariantK = curve.InvariantK(amountBase, amountQuote)
	return nil
}

// ApplyBuy moves desiredQuoteOut tokens out of the pool and returns the
// native amount the trader owes. state is left untouched on error.
func ApplyBuy(state *models.PoolState, desiredQuoteOut uint64) (uint64, error) {
	if err := checkDrift(state); err != nil {
		return 0, err
	}

	baseIn, err := curve.PriceBuy(state.ReserveBase, state.ReserveQuote, desiredQuoteOut)
	if err != nil {
		return 0, err
	}
	if desiredQuoteOut > state.ReserveQuote {
		return 0, fmt.Errorf("%w: want %d, pool holds %d", models.ErrInsufficientLiquidity, desiredQuoteOut, state.ReserveQuote)
	}

	newBase, carry := bits.Add64(state.ReserveBase, baseIn, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: base reserve %d + %d", models.ErrArithmeticOverflow, state.ReserveBase, baseIn)
	}
	if err := settle(state, newBase, state.ReserveQuote-desiredQuoteOut); err != nil {
		return 0, err
	}
	return baseIn, nil
}

// ApplySell moves quoteIn tokens into the pool and returns the native payout.
// A payout that rounds to zero is rejected so dust sells cannot donate tokens.
func ApplySell(state *models.PoolState, quoteIn uint64) (uint64, error) {
	if err := checkDrift(state); err != nil {
		return 0, err
	}

	baseOut, err := curve.PriceSell(state.ReserveBase, state.ReserveQuote, quoteIn)
	if err != nil {
		return 0, err
	}
	if baseOut == 0 {
		return 0, fmt.Errorf("%w: selling %d tokens pays nothing", models.ErrInvalidAmount, quoteIn)
	}
	if baseOut >= state.ReserveBase {
		return 0, fmt.Errorf("%w: payout %d, vault holds %d", models.ErrInsufficientReserve, baseOut, state.ReserveBase)
	}

	newQuote, carry := bits.Add64(state.ReserveQuote, quoteIn, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: quote reserve %d + %d", models.ErrArithmeticOverflow, state.ReserveQuote, quoteIn)
	}
	if err := settle(state, state.ReserveBase-baseOut, newQuote); err != nil {
		return 0, err
	}
	return baseOut, nil
}

func checkDrift(state *models.PoolState) error {
	if state.ReserveBase == 0 || state.ReserveQuote == 0 {
		return models.ErrUninitialized
	}
	if state.InvariantK == nil {
		return fmt.Errorf("%w: pool %s has no recorded k", models.ErrInvariantViolation, state.Mint)
	}
	if state.InvariantK.Gt(state.Product()) {
		return fmt.Errorf("%w: recorded k %s exceeds reserves product %s",
			models.ErrInvariantViolation, state.InvariantK.ToBig().String(), state.Product().ToBig().String())
	}
	return nil
}

func settle(state *models.PoolState, newBase, newQuote uint64) error {
	k := curve.InvariantK(newBase, newQuote)
	if k.Lt(state.InvariantK) {
		return fmt.Errorf("%w: k would fall from %s to %s",
			models.ErrInvariantViolation, state.InvariantK.ToBig().String(), k.ToBig().String())
	}
	state.ReserveBase = newBase
	state.ReserveQuote = newQuote
	state.InvariantK = k
	return nil
}
