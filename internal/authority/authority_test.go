package authority

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

var (
	testProgram = solana.MustPublicKeyFromBase58(constants.DefaultProgramID)
	testMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	otherMint   = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

func TestDerive_Deterministic(t *testing.T) {
	a, err := Derive(testProgram, testMint)
	require.NoError(t, err)
	b, err := Derive(testProgram, testMint)
	require.NoError(t, err)

	assert.Equal(t, a.Pool(), b.Pool())
	assert.Equal(t, a.Vault(), b.Vault())
	assert.Equal(t, a.PoolBump(), b.PoolBump())
	assert.NotEqual(t, a.Pool(), a.Vault())

	c, err := Derive(testProgram, otherMint)
	require.NoError(t, err)
	assert.NotEqual(t, a.Pool(), c.Pool())
}

func TestDerive_MatchesCreateProgramAddress(t *testing.T) {
	c, err := Derive(testProgram, testMint)
	require.NoError(t, err)

	addr, err := solana.CreateProgramAddress(
		[][]byte{[]byte(constants.SeedPool), testMint.Bytes(), {c.PoolBump()}},
		testProgram,
	)
	require.NoError(t, err)
	assert.Equal(t, c.Pool(), addr)
}

func TestDerive_RejectsZeroKeys(t *testing.T) {
	_, err := Derive(solana.PublicKey{}, testMint)
	assert.Error(t, err)

	_, err = Derive(testProgram, solana.PublicKey{})
	assert.Error(t, err)
}

func TestSignAsPool(t *testing.T) {
	c, err := Derive(testProgram, testMint)
	require.NoError(t, err)
	trader := solana.MustPublicKeyFromBase58("9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP")

	seeds, err := c.SignAsPool(models.TokenLeg(testMint, c.Pool(), trader, 10))
	require.NoError(t, err)
	assert.Equal(t, []byte(constants.SeedPool), seeds[0])
	assert.Equal(t, []byte{c.PoolBump()}, seeds[2])

	seeds, err = c.SignAsPool(models.NativeLeg(c.Vault(), trader, 10))
	require.NoError(t, err)
	assert.Equal(t, []byte(constants.SeedVault), seeds[0])

	_, err = c.SignAsPool(models.NativeLeg(trader, c.Vault(), 10))
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = c.SignAsPool(models.TokenLeg(otherMint, c.Pool(), trader, 10))
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// native leg from the token account is not a vault withdrawal
	_, err = c.SignAsPool(models.NativeLeg(c.Pool(), trader, 10))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestForPool(t *testing.T) {
	c, err := Derive(testProgram, testMint)
	require.NoError(t, err)

	state := &models.PoolState{}
	c.Apply(state)

	again, err := ForPool(testProgram, state)
	require.NoError(t, err)
	assert.Equal(t, c.Pool(), again.Pool())

	state.Vault = state.Address
	_, err = ForPool(testProgram, state)
	assert.Error(t, err)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	c, err := Derive(testProgram, testMint)
	require.NoError(t, err)

	a, _, err := FindAssociatedTokenAddress(c.Pool(), testMint)
	require.NoError(t, err)
	b, _, err := FindAssociatedTokenAddress(c.Pool(), otherMint)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
