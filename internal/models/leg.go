package models

import (
	"github.com/gagliardetto/solana-go"
)

// AssetKind selects which balance a transfer leg moves.
type AssetKind uint8

const (
	AssetNative AssetKind = iota // lamports
	AssetToken                   // SPL token of Leg.Mint
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token"
	default:
		return "unknown"
	}
}

// Leg is one value movement requested by the ledger.
type Leg struct {
	Kind   AssetKind
	Mint   solana.PublicKey // zero for native legs
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// NativeLeg builds a lamport transfer.
func NativeLeg(from, to solana.PublicKey, amount uint64) Leg {
	return Leg{Kind: AssetNative, From: from, To: to, Amount: amount}
}

// TokenLeg builds a token transfer of mint.
func TokenLeg(mint, from, to solana.PublicKey, amount uint64) Leg {
	return Leg{Kind: AssetToken, Mint: mint, From: from, To: to, Amount: amount}
}
