package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
)

var (
	testProgram = solana.MustPublicKeyFromBase58(constants.DefaultProgramID)
	testMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testClock   = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) PublishTrade(ctx context.Context, event *models.TradeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	ledger    *Ledger
	store     *storage.MemoryStore
	book      *transfer.Book
	depositor solana.PublicKey
	trader    solana.PublicKey
}

func newFixture(t *testing.T, sinks ...storage.TradeSink) *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	f := &fixture{
		store:     storage.NewMemoryStore(),
		book:      transfer.NewBook(logger),
		depositor: solana.NewWallet().PublicKey(),
		trader:    solana.NewWallet().PublicKey(),
	}
	l, err := New(Config{
		ProgramID: testProgram,
		Store:     f.store,
		Gateway:   f.book,
		Sinks:     sinks,
		Logger:    logger,
		Now:       func() time.Time { return testClock },
	})
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) fund(t *testing.T, owner solana.PublicKey, native, tokens uint64) {
	require.NoError(t, f.book.Credit(models.AssetNative, owner, solana.PublicKey{}, native))
	require.NoError(t, f.book.Credit(models.AssetToken, owner, testMint, tokens))
}

func (f *fixture) initialize(t *testing.T, base, quote uint64) models.PoolHandle {
	f.fund(t, f.depositor, base, quote)
	h, err := f.ledger.Initialize(context.Background(), InitializeRequest{
		Mint:        testMint,
		Depositor:   f.depositor,
		AmountBase:  base,
		AmountQuote: quote,
	})
	require.NoError(t, err)
	return h
}

func (f *fixture) native(owner solana.PublicKey) uint64 {
	return f.book.Balance(models.AssetNative, owner, solana.PublicKey{})
}

func (f *fixture) tokens(owner solana.PublicKey) uint64 {
	return f.book.Balance(models.AssetToken, owner, testMint)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Store: storage.NewMemoryStore(), Gateway: transfer.NewBook(nil)})
	assert.Error(t, err)
	_, err = New(Config{ProgramID: testProgram, Gateway: transfer.NewBook(nil)})
	assert.Error(t, err)
	_, err = New(Config{ProgramID: testProgram, Store: storage.NewMemoryStore()})
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	h := f.initialize(t, 1000, 2000)

	assert.Equal(t, testMint, h.Mint)
	assert.False(t, h.Address.IsZero())
	assert.False(t, h.Vault.IsZero())

	state, err := f.ledger.Pool(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), state.ReserveBase)
	assert.Equal(t, uint64(2000), state.ReserveQuote)
	assert.Equal(t, uint256.NewInt(2_000_000), state.InvariantK)
	assert.Equal(t, testClock, state.CreatedAt)

	assert.Equal(t, uint64(1000), f.native(h.Vault))
	assert.Equal(t, uint64(2000), f.tokens(h.Address))
	assert.Zero(t, f.native(f.depositor))
	assert.Zero(t, f.tokens(f.depositor))
}

func TestInitialize_ZeroReserve(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.depositor, 0, 100)

	_, err := f.ledger.Initialize(context.Background(), InitializeRequest{
		Mint: testMint, Depositor: f.depositor, AmountBase: 0, AmountQuote: 100,
	})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.ledger.Pool(context.Background(), testMint)
	assert.ErrorIs(t, err, models.ErrUninitialized)
	assert.Equal(t, uint64(100), f.tokens(f.depositor))
}

func TestInitialize_Twice(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.depositor, 1000, 2000)

	_, err := f.ledger.Initialize(context.Background(), InitializeRequest{
		Mint: testMint, Depositor: f.depositor, AmountBase: 1000, AmountQuote: 2000,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyInitialized)
	assert.Equal(t, uint64(1000), f.native(f.depositor))
}

func TestInitialize_DepositorUnfunded(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.depositor, 1000, 10)

	_, err := f.ledger.Initialize(context.Background(), InitializeRequest{
		Mint: testMint, Depositor: f.depositor, AmountBase: 1000, AmountQuote: 2000,
	})
	var terr *models.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.AssetToken, terr.Leg.Kind)

	_, err = f.ledger.Pool(context.Background(), testMint)
	assert.ErrorIs(t, err, models.ErrUninitialized)
	assert.Equal(t, uint64(1000), f.native(f.depositor))
}

func TestBuy(t *testing.T) {
	f := newFixture(t)
	h := f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 1000, 0)

	r, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1000})
	require.NoError(t, err)

	assert.Equal(t, models.SideBuy, r.Side)
	assert.Equal(t, uint64(1000), r.BaseAmount)
	assert.Equal(t, uint64(1000), r.QuoteAmount)
	assert.Equal(t, uint64(2000), r.State.ReserveBase)
	assert.Equal(t, uint64(1000), r.State.ReserveQuote)
	assert.Equal(t, uint256.NewInt(2_000_000), r.State.InvariantK)

	assert.Zero(t, f.native(f.trader))
	assert.Equal(t, uint64(1000), f.tokens(f.trader))
	assert.Equal(t, uint64(2000), f.native(h.Vault))
	assert.Equal(t, uint64(1000), f.tokens(h.Address))
}

func TestSell(t *testing.T) {
	f := newFixture(t)
	h := f.initialize(t, 2000, 1000)
	f.fund(t, f.trader, 0, 500)

	r, err := f.ledger.Sell(context.Background(), SellRequest{Mint: testMint, Trader: f.trader, QuoteIn: 500})
	require.NoError(t, err)

	assert.Equal(t, uint64(666), r.BaseAmount)
	assert.Equal(t, uint64(1334), r.State.ReserveBase)
	assert.Equal(t, uint64(1500), r.State.ReserveQuote)
	assert.Equal(t, uint256.NewInt(2_001_000), r.State.InvariantK)

	assert.Equal(t, uint64(666), f.native(f.trader))
	assert.Zero(t, f.tokens(f.trader))
	assert.Equal(t, uint64(1334), f.native(h.Vault))
	assert.Equal(t, uint64(1500), f.tokens(h.Address))
}

func TestTrade_Uninitialized(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.trader, 1000, 1000)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1})
	assert.ErrorIs(t, err, models.ErrUninitialized)
	_, err = f.ledger.Sell(context.Background(), SellRequest{Mint: testMint, Trader: f.trader, QuoteIn: 1})
	assert.ErrorIs(t, err, models.ErrUninitialized)
	_, err = f.ledger.QuoteBuy(context.Background(), testMint, 1)
	assert.ErrorIs(t, err, models.ErrUninitialized)
}

func TestBuy_TransferFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	h := f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 999, 0)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1000})
	var terr *models.TransferError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	state, err := f.ledger.Pool(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), state.ReserveBase)
	assert.Equal(t, uint64(2000), state.ReserveQuote)
	assert.Equal(t, uint64(999), f.native(f.trader))
	assert.Zero(t, f.tokens(f.trader))
	assert.Equal(t, uint64(2000), f.tokens(h.Address))
}

func TestBuy_DrainRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 1_000_000, 0)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 2000})
	assert.ErrorIs(t, err, models.ErrInsufficientLiquidity)
}

func TestSlippageGuards(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 10_000, 500)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{
		Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1000, MaxBaseIn: 999,
	})
	assert.ErrorIs(t, err, models.ErrSlippageExceeded)

	_, err = f.ledger.Sell(context.Background(), SellRequest{
		Mint: testMint, Trader: f.trader, QuoteIn: 500, MinBaseOut: 201,
	})
	assert.ErrorIs(t, err, models.ErrSlippageExceeded)

	state, err := f.ledger.Pool(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), state.ReserveBase)
	assert.Equal(t, uint64(2000), state.ReserveQuote)
	assert.Equal(t, uint64(10_000), f.native(f.trader))

	r, err := f.ledger.Sell(context.Background(), SellRequest{
		Mint: testMint, Trader: f.trader, QuoteIn: 500, MinBaseOut: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.BaseAmount)
}

func TestQuotesMatchSettlement(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 2000, 1000)
	f.fund(t, f.trader, 0, 500)

	q, err := f.ledger.QuoteSell(context.Background(), testMint, 500)
	require.NoError(t, err)

	r, err := f.ledger.Sell(context.Background(), SellRequest{Mint: testMint, Trader: f.trader, QuoteIn: 500})
	require.NoError(t, err)
	assert.Equal(t, q.BaseAmount, r.BaseAmount)
	assert.Equal(t, q.ReserveBaseAfter, r.State.ReserveBase)
	assert.Equal(t, q.InvariantKAfter, r.State.InvariantK)
}

func TestConcurrentBuysSerialize(t *testing.T) {
	f := newFixture(t)
	h := f.initialize(t, 1_000_000, 1_000_000)

	const workers = 20
	traders := make([]solana.PublicKey, workers)
	for i := range traders {
		traders[i] = solana.NewWallet().PublicKey()
		f.fund(t, traders[i], 1_000_000, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, trader := range traders {
		wg.Add(1)
		go func(trader solana.PublicKey) {
			defer wg.Done()
			_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: trader, DesiredQuoteOut: 100})
			errs <- err
		}(trader)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := f.ledger.Pool(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000-workers*100), state.ReserveQuote)
	assert.Equal(t, state.ReserveBase, f.native(h.Vault))
	assert.Equal(t, state.ReserveQuote, f.tokens(h.Address))
	assert.False(t, state.InvariantK.Lt(uint256.NewInt(1_000_000*1_000_000)))
}

func TestSinksReceiveCommittedTrades(t *testing.T) {
	sink := &mockSink{}
	failing := &mockSink{}
	sink.On("PublishTrade", mock.Anything, mock.AnythingOfType("*models.TradeEvent")).Return(nil)
	failing.On("PublishTrade", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	f := newFixture(t, sink, failing)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 1000, 0)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1000})
	require.NoError(t, err)

	sink.AssertNumberOfCalls(t, "PublishTrade", 2)
	failing.AssertNumberOfCalls(t, "PublishTrade", 2)

	last := sink.Calls[1].Arguments.Get(1).(*models.TradeEvent)
	assert.Equal(t, models.SideBuy, last.Side)
	assert.Equal(t, f.trader.String(), last.Trader)
	assert.Equal(t, uint64(1000), last.BaseAmount)
	assert.Equal(t, "2000000", last.InvariantK)
	assert.Equal(t, testClock, last.Timestamp)
}

func TestRejectedTradesAreNotPublished(t *testing.T) {
	sink := &mockSink{}
	sink.On("PublishTrade", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, sink)
	f.initialize(t, 1000, 2000)

	_, err := f.ledger.Buy(context.Background(), BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 10})
	require.Error(t, err)
	sink.AssertNumberOfCalls(t, "PublishTrade", 1)
}

func TestPools(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 1000, 2000)

	pools, err := f.ledger.Pools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, testMint, pools[0].Mint)
}

// cancelAfterCommit cancels the request context right after the gateway commits.
type cancelAfterCommit struct {
	transfer.Gateway
	cancel context.CancelFunc
}

func (g *cancelAfterCommit) Begin(ctx context.Context, pool *authority.Capability) (transfer.Session, error) {
	s, err := g.Gateway.Begin(ctx, pool)
	if err != nil {
		return nil, err
	}
	return &cancelSession{Session: s, cancel: g.cancel}, nil
}

type cancelSession struct {
	transfer.Session
	cancel context.CancelFunc
}

func (s *cancelSession) Commit(ctx context.Context) error {
	err := s.Session.Commit(ctx)
	s.cancel()
	return err
}

func TestBuy_CancelledAfterSettlementStillPersists(t *testing.T) {
	sink := &mockSink{}
	sink.On("PublishTrade", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 1000, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := New(Config{
		ProgramID: testProgram,
		Store:     f.store,
		Gateway:   &cancelAfterCommit{Gateway: f.book, cancel: cancel},
		Sinks:     []storage.TradeSink{sink},
		Now:       func() time.Time { return testClock },
	})
	require.NoError(t, err)

	r, err := l.Buy(ctx, BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), r.BaseAmount)
	require.Error(t, ctx.Err())

	state, err := f.ledger.Pool(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), state.ReserveBase)
	assert.Equal(t, uint64(1000), state.ReserveQuote)
	assert.Equal(t, state.ReserveBase, f.native(state.Vault))
	assert.Equal(t, state.ReserveQuote, f.tokens(state.Address))
	assert.Zero(t, f.native(f.trader))
	assert.Equal(t, uint64(1000), f.tokens(f.trader))

	sink.AssertNumberOfCalls(t, "PublishTrade", 1)
	published := sink.Calls[0].Arguments.Get(0).(context.Context)
	assert.NoError(t, published.Err())
}

func TestPriceImpactGuard(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 1000, 2000)
	f.fund(t, f.trader, 10_000, 500)
	ctx := context.Background()

	// Selling 500 into (1000, 2000) pays 200 at 0.4 per token against a spot of 0.5: 20% impact.
	_, err := f.ledger.Sell(ctx, SellRequest{Mint: testMint, Trader: f.trader, QuoteIn: 500, MaxImpactBps: 1900})
	assert.ErrorIs(t, err, models.ErrSlippageExceeded)

	state, err := f.ledger.Pool(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), state.ReserveQuote)
	assert.Equal(t, uint64(500), f.tokens(f.trader))

	r, err := f.ledger.Sell(ctx, SellRequest{Mint: testMint, Trader: f.trader, QuoteIn: 500, MaxImpactBps: 2100})
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.BaseAmount)

	// Buying half of the 2500 tokens now held costs far more than spot.
	_, err = f.ledger.Buy(ctx, BuyRequest{Mint: testMint, Trader: f.trader, DesiredQuoteOut: 1250, MaxImpactBps: 5000})
	assert.ErrorIs(t, err, models.ErrSlippageExceeded)
}
