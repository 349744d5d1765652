// cmd/quote prices a trade against given reserves without touching any pool.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/curve"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

func main() {
	side := flag.String("side", models.SideBuy, "buy or sell")
	base := flag.Uint64("base", 0, "native reserve")
	quote := flag.Uint64("quote", 0, "token reserve")
	amount := flag.Uint64("amount", 0, "tokens to buy or sell")
	slippage := flag.Uint("slippage-bps", 0, "slippage tolerance in basis points")
	mint := flag.String("mint", "", "optional mint; prints the derived pool and vault addresses")
	program := flag.String("program", constants.DefaultProgramID, "bonding curve program id")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if *slippage > 10000 {
		logger.Fatal("slippage-bps must be at most 10000")
	}

	var (
		q   *curve.Quote
		err error
	)
	switch *side {
	case models.SideBuy:
		q, err = curve.QuoteBuy(*base, *quote, *amount)
	case models.SideSell:
		q, err = curve.QuoteSell(*base, *quote, *amount)
	default:
		logger.Fatalf("unknown side %q", *side)
	}
	if err != nil {
		logger.WithError(err).Fatal("cannot price trade")
	}

	out := map[string]any{
		"side":                q.Side,
		"base_amount":         q.BaseAmount,
		"quote_amount":        q.QuoteAmount,
		"reserve_base_after":  q.ReserveBaseAfter,
		"reserve_quote_after": q.ReserveQuoteAfter,
		"invariant_k_after":   q.InvariantKAfter.ToBig().String(),
		"spot_price_before":   q.SpotPriceBefore,
		"spot_price_after":    q.SpotPriceAfter,
		"price_impact":        q.PriceImpact,
	}

	if *slippage > 0 {
		bps := uint16(*slippage)
		if q.Side == models.SideBuy {
			limit, err := curve.MaxWithSlippage(q.BaseAmount, bps)
			if err != nil {
				logger.WithError(err).Fatal("cannot apply slippage")
			}
			out["max_base_in"] = limit
		} else {
			out["min_base_out"] = curve.ApplySlippage(q.BaseAmount, bps)
		}
	}

	if *mint != "" {
		programID, err := solana.PublicKeyFromBase58(*program)
		if err != nil {
			logger.WithError(err).Fatal("invalid program id")
		}
		mintKey, err := solana.PublicKeyFromBase58(*mint)
		if err != nil {
			logger.WithError(err).Fatal("invalid mint")
		}
		c, err := authority.Derive(programID, mintKey)
		if err != nil {
			logger.WithError(err).Fatal("cannot derive pool addresses")
		}
		out["pool"] = c.Pool().String()
		out["vault"] = c.Vault().String()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
