package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// PriceBuy returns the native amount a trader must pay to take desiredQuoteOut
// tokens out of a pool holding (reserveBase, reserveQuote).
// Uses x * y = k with the new base reserve rounded up, so the cost is never
// below what the exact curve requires.
func PriceBuy(reserveBase, reserveQuote, desiredQuoteOut uint64) (uint64, error) {
	if reserveBase == 0 || reserveQuote == 0 {
		return 0, fmt.Errorf("%w: empty reserves", models.ErrInsufficientLiquidity)
	}
	// Strict: taking the whole reserve leaves a zero divisor for the next trade.
	if desiredQuoteOut == 0 || desiredQuoteOut >= reserveQuote {
		return 0, fmt.Errorf("%w: requested %d of %d tokens",
			models.ErrInsufficientLiquidity, desiredQuoteOut, reserveQuote)
	}

	k := product(reserveBase, reserveQuote)
	newReserveQuote := uint256.NewInt(reserveQuote - desiredQuoteOut)

	newReserveBase := ceilDiv(k, newReserveQuote)
	if !newReserveBase.IsUint64() {
		return 0, fmt.Errorf("%w: new base reserve %s", models.ErrArithmeticOverflow, newReserveBase.ToBig())
	}

	nb := newReserveBase.Uint64()
	if nb < reserveBase {
		return 0, fmt.Errorf("%w: base reserve underflow", models.ErrArithmeticOverflow)
	}
	return nb - reserveBase, nil
}

// PriceSell returns the native amount paid out for quoteIn tokens.
// The payout is rounded down: the retained base reserve is ceil(k / newQuote).
func PriceSell(reserveBase, reserveQuote, quoteIn uint64) (uint64, error) {
	if quoteIn == 0 {
		return 0, fmt.Errorf("%w: quote in must be > 0", models.ErrInvalidAmount)
	}
	if reserveBase == 0 || reserveQuote == 0 {
		return 0, fmt.Errorf("%w: empty reserves", models.ErrInsufficientLiquidity)
	}

	newReserveQuote := new(uint256.Int).AddUint64(uint256.NewInt(reserveQuote), quoteIn)
	if !newReserveQuote.IsUint64() {
		return 0, fmt.Errorf("%w: quote reserve %d + %d", models.ErrArithmeticOverflow, reserveQuote, quoteIn)
	}

	k := product(reserveBase, reserveQuote)
	newReserveBase := ceilDiv(k, newReserveQuote)
	if !newReserveBase.IsUint64() || newReserveBase.Uint64() > reserveBase {
		return 0, fmt.Errorf("%w: base reserve underflow", models.ErrArithmeticOverflow)
	}

	return reserveBase - newReserveBase.Uint64(), nil
}

// InvariantK returns reserveBase * reserveQuote as a 256-bit integer.
func InvariantK(reserveBase, reserveQuote uint64) *uint256.Int {
	return product(reserveBase, reserveQuote)
}

func product(a, b uint64) *uint256.Int {
	// Two u64 factors fit in 128 bits; the overflow flag is unreachable.
	k, _ := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	return k
}

// ceilDiv returns ceil(n / d). d must be non-zero.
func ceilDiv(n, d *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(n, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}
