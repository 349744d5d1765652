// Package authority derives the program-owned addresses of a pool and hands out
// the capability that lets the pool authorize transfers out of them.
package authority

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// Capability authorizes outgoing transfers from a pool's token account and native vault.
// It carries signer seeds, never key material.
type Capability struct {
	programID solana.PublicKey
	mint      solana.PublicKey

	pool      solana.PublicKey
	poolBump  uint8
	vault     solana.PublicKey
	vaultBump uint8
}

// Derive computes the pool and vault PDAs for mint under programID.
// The same inputs always yield the same addresses.
func Derive(programID, mint solana.PublicKey) (*Capability, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("authority: program id is zero")
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("authority: mint is zero")
	}

	pool, poolBump, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedPool), mint.Bytes()},
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("authority: derive pool: %w", err)
	}

	vault, vaultBump, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedVault), pool.Bytes()},
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("authority: derive vault: %w", err)
	}

	return &Capability{
		programID: programID,
		mint:      mint,
		pool:      pool,
		poolBump:  poolBump,
		vault:     vault,
		vaultBump: vaultBump,
	}, nil
}

// ForPool rebuilds the capability of a stored pool and checks it still matches the record.
func ForPool(programID solana.PublicKey, state *models.PoolState) (*Capability, error) {
	c, err := Derive(programID, state.Mint)
	if err != nil {
		return nil, err
	}
	if !c.pool.Equals(state.Address) || !c.vault.Equals(state.Vault) {
		return nil, fmt.Errorf("authority: stored addresses for %s do not match program %s", state.Mint, programID)
	}
	return c, nil
}

func (c *Capability) ProgramID() solana.PublicKey { return c.programID }
func (c *Capability) Mint() solana.PublicKey      { return c.mint }
func (c *Capability) Pool() solana.PublicKey      { return c.pool }
func (c *Capability) PoolBump() uint8             { return c.poolBump }
func (c *Capability) Vault() solana.PublicKey     { return c.vault }
func (c *Capability) VaultBump() uint8            { return c.vaultBump }

// Owns reports whether addr is one of the pool's program-owned accounts.
func (c *Capability) Owns(addr solana.PublicKey) bool {
	return addr.Equals(c.pool) || addr.Equals(c.vault)
}

// SignAsPool authorizes a leg leaving a pool-owned account and returns the
// PDA signer seeds the host program uses to sign for it.
func (c *Capability) SignAsPool(leg models.Leg) ([][]byte, error) {
	switch {
	case leg.Kind == models.AssetToken && leg.From.Equals(c.pool):
		if !leg.Mint.Equals(c.mint) {
			return nil, fmt.Errorf("%w: pool %s does not custody mint %s", models.ErrUnauthorized, c.pool, leg.Mint)
		}
		return [][]byte{[]byte(constants.SeedPool), c.mint.Bytes(), {c.poolBump}}, nil
	case leg.Kind == models.AssetNative && leg.From.Equals(c.vault):
		return [][]byte{[]byte(constants.SeedVault), c.pool.Bytes(), {c.vaultBump}}, nil
	default:
		return nil, fmt.Errorf("%w: %s leg from %s is not custodied by pool %s",
			models.ErrUnauthorized, leg.Kind, leg.From, c.pool)
	}
}

// Apply stamps the derived addresses onto a fresh pool record.
func (c *Capability) Apply(state *models.PoolState) {
	state.Mint = c.mint
	state.Address = c.pool
	state.Bump = c.poolBump
	state.Vault = c.vault
	state.VaultBump = c.vaultBump
}
