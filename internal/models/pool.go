// ============================================================================
// models/pool.go
// ============================================================================
package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// PoolState is the persisted reserve record of one bonding-curve pool.
// One record exists per mint; it is created once and mutated in place.
type PoolState struct {
	Mint      solana.PublicKey // traded asset, the pool's identity
	Address   solana.PublicKey // pool PDA, owns the token reserve
	Bump      uint8
	Vault     solana.PublicKey // native-currency vault PDA
	VaultBump uint8

	ReserveBase  uint64       // native currency held in the vault
	ReserveQuote uint64       // traded token held by the pool
	InvariantK   *uint256.Int // ReserveBase * ReserveQuote at last settlement

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate without touching the stored record.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	cp := *p
	if p.InvariantK != nil {
		cp.InvariantK = new(uint256.Int).Set(p.InvariantK)
	}
	return &cp
}

// Product recomputes ReserveBase * ReserveQuote. It cannot overflow 256 bits.
func (p *PoolState) Product() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(p.ReserveBase), uint256.NewInt(p.ReserveQuote))
}

// Handle returns the addressing data callers need to trade against the pool.
func (p *PoolState) Handle() PoolHandle {
	return PoolHandle{Mint: p.Mint, Address: p.Address, Vault: p.Vault}
}

// PoolHandle identifies an initialized pool.
type PoolHandle struct {
	Mint    solana.PublicKey `json:"mint"`
	Address solana.PublicKey `json:"address"`
	Vault   solana.PublicKey `json:"vault"`
}

// PoolView is the JSON shape of a pool used by the API, the pub/sub feed and the caches.
type PoolView struct {
	Mint         string    `json:"mint"`
	Address      string    `json:"address"`
	Bump         uint8     `json:"bump"`
	Vault        string    `json:"vault"`
	VaultBump    uint8     `json:"vault_bump"`
	ReserveBase  uint64    `json:"reserve_base"`
	ReserveQuote uint64    `json:"reserve_quote"`
	InvariantK   string    `json:"invariant_k"` // decimal
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// View converts the state to its serializable form.
func (p *PoolState) View() PoolView {
	k := "0"
	if p.InvariantK != nil {
		k = p.InvariantK.ToBig().String()
	}
	return PoolView{
		Mint:         p.Mint.String(),
		Address:      p.Address.String(),
		Bump:         p.Bump,
		Vault:        p.Vault.String(),
		VaultBump:    p.VaultBump,
		ReserveBase:  p.ReserveBase,
		ReserveQuote: p.ReserveQuote,
		InvariantK:   k,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// State parses a PoolView back into a PoolState.
func (v PoolView) State() (*PoolState, error) {
	mint, err := solana.PublicKeyFromBase58(v.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint: %w", err)
	}
	addr, err := solana.PublicKeyFromBase58(v.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid pool address: %w", err)
	}
	vault, err := solana.PublicKeyFromBase58(v.Vault)
	if err != nil {
		return nil, fmt.Errorf("invalid vault address: %w", err)
	}
	k, err := ParseWide(v.InvariantK)
	if err != nil {
		return nil, err
	}
	return &PoolState{
		Mint:         mint,
		Address:      addr,
		Bump:         v.Bump,
		Vault:        vault,
		VaultBump:    v.VaultBump,
		ReserveBase:  v.ReserveBase,
		ReserveQuote: v.ReserveQuote,
		InvariantK:   k,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}, nil
}

// ParseWide parses a non-negative decimal string into a 256-bit integer.
func ParseWide(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid wide integer %q", s)
	}
	k, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("wide integer %q overflows 256 bits", s)
	}
	return k, nil
}
