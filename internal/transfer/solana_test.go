package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, plan *Plan) (string, error) {
	args := m.Called(ctx, plan)
	return args.String(0), args.Error(1)
}

func TestSolanaGateway_BuildsBuyPlan(t *testing.T) {
	cap := testCapability(t)
	dry := &DryRunSubmitter{}
	gw, err := NewSolanaGateway(dry, nil)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := gw.Begin(ctx, cap)
	require.NoError(t, err)
	require.NoError(t, s.MoveValue(ctx, models.NativeLeg(testTrader, cap.Vault(), 1_000)))
	require.NoError(t, s.MoveValue(ctx, models.TokenLeg(testMint, cap.Pool(), testTrader, 250)))
	require.NoError(t, s.Commit(ctx))

	plans := dry.Plans()
	require.Len(t, plans, 1)
	plan := plans[0]
	assert.Equal(t, testProgram, plan.Program)
	require.Len(t, plan.Instructions, 3) // system transfer, ata create, token transfer
	require.Len(t, plan.SignerSeeds, 1)  // only the pool-owned token source

	sys := plan.Instructions[0]
	assert.Equal(t, solana.SystemProgramID, sys.ProgramID())
	data, err := sys.Data()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[4:12]))

	create := plan.Instructions[1]
	assert.Equal(t, authority.AssociatedTokenProgramID(), create.ProgramID())
	// trader pays for their own destination account
	assert.Equal(t, testTrader, create.Accounts()[0].PublicKey)

	tok := plan.Instructions[2]
	assert.Equal(t, solana.TokenProgramID, tok.ProgramID())
	data, err = tok.Data()
	require.NoError(t, err)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(250), binary.LittleEndian.Uint64(data[1:9]))

	poolATA, _, err := authority.FindAssociatedTokenAddress(cap.Pool(), testMint)
	require.NoError(t, err)
	accts := tok.Accounts()
	assert.Equal(t, poolATA, accts[0].PublicKey)
	assert.Equal(t, cap.Pool(), accts[2].PublicKey)
	assert.True(t, accts[2].IsSigner)
}

func TestSolanaGateway_SubmitFailureIsTransferError(t *testing.T) {
	cap := testCapability(t)
	sub := &mockSubmitter{}
	sub.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("blockhash expired"))

	gw, err := NewSolanaGateway(sub, nil)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := gw.Begin(ctx, cap)
	require.NoError(t, err)
	require.NoError(t, s.MoveValue(ctx, models.TokenLeg(testMint, testTrader, cap.Pool(), 10)))

	err = s.Commit(ctx)
	var terr *models.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, err.Error(), "blockhash expired")
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestSolanaGateway_RollbackSubmitsNothing(t *testing.T) {
	cap := testCapability(t)
	sub := &mockSubmitter{}
	gw, err := NewSolanaGateway(sub, nil)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := gw.Begin(ctx, cap)
	require.NoError(t, err)
	require.NoError(t, s.MoveValue(ctx, models.NativeLeg(testTrader, cap.Vault(), 10)))
	s.Rollback()

	assert.Error(t, s.Commit(ctx))
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSolanaGateway_RejectsForeignPoolSource(t *testing.T) {
	cap := testCapability(t)
	gw, err := NewSolanaGateway(&DryRunSubmitter{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := gw.Begin(ctx, cap)
	require.NoError(t, err)
	err = s.MoveValue(ctx, models.TokenLeg(solana.SystemProgramID, cap.Pool(), testTrader, 10))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestNewSolanaGateway_RequiresSubmitter(t *testing.T) {
	_, err := NewSolanaGateway(nil, nil)
	assert.Error(t, err)
}
