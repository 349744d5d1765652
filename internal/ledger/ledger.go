package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/curve"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/metrics"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
)

type InitializeRequest struct {
	Mint        solana.PublicKey
	Depositor   solana.PublicKey
	AmountBase  uint64
	AmountQuote uint64
}

type BuyRequest struct {
	Mint            solana.PublicKey
	Trader          solana.PublicKey
	DesiredQuoteOut uint64
	MaxBaseIn       uint64 // 0 disables the check
	MaxImpactBps    uint16 // 0 disables the check
}

type SellRequest struct {
	Mint         solana.PublicKey
	Trader       solana.PublicKey
	QuoteIn      uint64
	MinBaseOut   uint64 // 0 disables the check
	MaxImpactBps uint16 // 0 disables the check
}

// Receipt is the result of a committed trade.
type Receipt struct {
	Side        string
	Pool        models.PoolHandle
	Trader      solana.PublicKey
	BaseAmount  uint64
	QuoteAmount uint64
	State       *models.PoolState
}

type Config struct {
	ProgramID solana.PublicKey
	Store     storage.PoolStore
	Gateway   transfer.Gateway
	Sinks     []storage.TradeSink
	Metrics   *metrics.Collector
	Logger    *logrus.Logger
	Now       func() time.Time
}

// Ledger runs pool operations against a store and a transfer gateway.
// Each operation settles both legs or neither.
type Ledger struct {
	programID solana.PublicKey
	store     storage.PoolStore
	gateway   transfer.Gateway
	sinks     []storage.TradeSink
	metrics   *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time
}

func New(cfg Config) (*Ledger, error) {
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("ledger: program id is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("ledger: gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		programID: cfg.ProgramID,
		store:     cfg.Store,
		gateway:   cfg.Gateway,
		sinks:     cfg.Sinks,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

func (l *Ledger) ProgramID() solana.PublicKey {
	return l.programID
}

// Initialize creates the pool for req.Mint and deposits both reserves.
func (l *Ledger) Initialize(ctx context.Context, req InitializeRequest) (models.PoolHandle, error) {
	if req.Mint.IsZero() || req.Depositor.IsZero() {
		return models.PoolHandle{}, l.reject(models.SideInitialize, req.Mint, fmt.Errorf("%w: mint and depositor are required", models.ErrInvalidAmount))
	}
	if err := ApplyInitialize(&models.PoolState{}, req.AmountBase, req.AmountQuote); err != nil {
		return models.PoolHandle{}, l.reject(models.SideInitialize, req.Mint, err)
	}

	capability, err := authority.Derive(l.programID, req.Mint)
	if err != nil {
		return models.PoolHandle{}, l.reject(models.SideInitialize, req.Mint, err)
	}

	now := l.now().UTC()
	fresh := &models.PoolState{CreatedAt: now, UpdatedAt: now}
	capability.Apply(fresh)

	state, err := l.store.Create(ctx, fresh, func(draft *models.PoolState) error {
		if err := ApplyInitialize(draft, req.AmountBase, req.AmountQuote); err != nil {
			return err
		}
		return l.settle(ctx, capability,
			models.NativeLeg(req.Depositor, capability.Vault(), req.AmountBase),
			models.TokenLeg(req.Mint, req.Depositor, capability.Pool(), req.AmountQuote),
		)
	})
	if err != nil {
		return models.PoolHandle{}, l.reject(models.SideInitialize, req.Mint, err)
	}

	l.committed(ctx, models.SideInitialize, req.Depositor, req.AmountBase, req.AmountQuote, state)
	return state.Handle(), nil
}

// Buy takes req.DesiredQuoteOut tokens from the pool and charges the trader
// the native amount the curve requires.
func (l *Ledger) Buy(ctx context.Context, req BuyRequest) (*Receipt, error) {
	if req.Trader.IsZero() {
		return nil, l.reject(models.SideBuy, req.Mint, fmt.Errorf("%w: trader is required", models.ErrInvalidAmount))
	}

	var baseIn uint64
	state, err := l.store.Update(ctx, req.Mint, func(draft *models.PoolState) error {
		capability, err := authority.ForPool(l.programID, draft)
		if err != nil {
			return err
		}
		reserveBase, reserveQuote := draft.ReserveBase, draft.ReserveQuote
		baseIn, err = ApplyBuy(draft, req.DesiredQuoteOut)
		if err != nil {
			return err
		}
		if req.MaxBaseIn > 0 && baseIn > req.MaxBaseIn {
			return fmt.Errorf("%w: requires %d, limit %d", models.ErrSlippageExceeded, baseIn, req.MaxBaseIn)
		}
		if err := checkImpact(reserveBase, reserveQuote, baseIn, req.DesiredQuoteOut, req.MaxImpactBps); err != nil {
			return err
		}
		draft.UpdatedAt = l.now().UTC()
		return l.settle(ctx, capability,
			models.NativeLeg(req.Trader, capability.Vault(), baseIn),
			models.TokenLeg(req.Mint, capability.Pool(), req.Trader, req.DesiredQuoteOut),
		)
	})
	if err != nil {
		return nil, l.reject(models.SideBuy, req.Mint, err)
	}

	l.committed(ctx, models.SideBuy, req.Trader, baseIn, req.DesiredQuoteOut, state)
	return &Receipt{
		Side:        models.SideBuy,
		Pool:        state.Handle(),
		Trader:      req.Trader,
		BaseAmount:  baseIn,
		QuoteAmount: req.DesiredQuoteOut,
		State:       state,
	}, nil
}

// Sell gives req.QuoteIn tokens to the pool and pays the trader from the vault.
func (l *Ledger) Sell(ctx context.Context, req SellRequest) (*Receipt, error) {
	if req.Trader.IsZero() {
		return nil, l.reject(models.SideSell, req.Mint, fmt.Errorf("%w: trader is required", models.ErrInvalidAmount))
	}

	var baseOut uint64
	state, err := l.store.Update(ctx, req.Mint, func(draft *models.PoolState) error {
		capability, err := authority.ForPool(l.programID, draft)
		if err != nil {
			return err
		}
		reserveBase, reserveQuote := draft.ReserveBase, draft.ReserveQuote
		baseOut, err = ApplySell(draft, req.QuoteIn)
		if err != nil {
			return err
		}
		if baseOut < req.MinBaseOut {
			return fmt.Errorf("%w: pays %d, minimum %d", models.ErrSlippageExceeded, baseOut, req.MinBaseOut)
		}
		if err := checkImpact(reserveBase, reserveQuote, baseOut, req.QuoteIn, req.MaxImpactBps); err != nil {
			return err
		}
		draft.UpdatedAt = l.now().UTC()
		return l.settle(ctx, capability,
			models.TokenLeg(req.Mint, req.Trader, capability.Pool(), req.QuoteIn),
			models.NativeLeg(capability.Vault(), req.Trader, baseOut),
		)
	})
	if err != nil {
		return nil, l.reject(models.SideSell, req.Mint, err)
	}

	l.committed(ctx, models.SideSell, req.Trader, baseOut, req.QuoteIn, state)
	return &Receipt{
		Side:        models.SideSell,
		Pool:        state.Handle(),
		Trader:      req.Trader,
		BaseAmount:  baseOut,
		QuoteAmount: req.QuoteIn,
		State:       state,
	}, nil
}

func (l *Ledger) QuoteBuy(ctx context.Context, mint solana.PublicKey, desiredQuoteOut uint64) (*curve.Quote, error) {
	state, err := l.store.Load(ctx, mint)
	if err != nil {
		return nil, err
	}
	return curve.QuoteBuy(state.ReserveBase, state.ReserveQuote, desiredQuoteOut)
}

func (l *Ledger) QuoteSell(ctx context.Context, mint solana.PublicKey, quoteIn uint64) (*curve.Quote, error) {
	state, err := l.store.Load(ctx, mint)
	if err != nil {
		return nil, err
	}
	return curve.QuoteSell(state.ReserveBase, state.ReserveQuote, quoteIn)
}

func (l *Ledger) Pool(ctx context.Context, mint solana.PublicKey) (*models.PoolState, error) {
	return l.store.Load(ctx, mint)
}

func (l *Ledger) Pools(ctx context.Context) ([]*models.PoolState, error) {
	return l.store.List(ctx)
}

func checkImpact(reserveBase, reserveQuote, base, quote uint64, maxBps uint16) error {
	if maxBps == 0 {
		return nil
	}
	return curve.ValidatePriceImpact(curve.PriceImpact(reserveBase, reserveQuote, base, quote), maxBps)
}

// settle moves every leg in one gateway session and commits it.
func (l *Ledger) settle(ctx context.Context, capability *authority.Capability, legs ...models.Leg) error {
	session, err := l.gateway.Begin(ctx, capability)
	if err != nil {
		return err
	}
	for _, leg := range legs {
		if err := session.MoveValue(ctx, leg); err != nil {
			session.Rollback()
			return err
		}
	}
	if err := session.Commit(ctx); err != nil {
		session.Rollback()
		return err
	}
	return nil
}

func (l *Ledger) reject(side string, mint solana.PublicKey, err error) error {
	code := models.ErrorCode(err)
	l.metrics.ObserveRejection(side, code)

	entry := l.logger.WithFields(logrus.Fields{
		"side": side,
		"mint": mint.String(),
		"code": code,
	})
	if errors.Is(err, models.ErrInvariantViolation) {
		entry.WithError(err).Error("Pool invariant check failed")
	} else {
		entry.WithError(err).Debug("Pool operation rejected")
	}
	return err
}

func (l *Ledger) committed(ctx context.Context, side string, trader solana.PublicKey, base, quote uint64, state *models.PoolState) {
	l.metrics.ObserveTrade(side, state.Mint.String(), base, quote, state.ReserveBase, state.ReserveQuote)

	l.logger.WithFields(logrus.Fields{
		"side":          side,
		"mint":          state.Mint.String(),
		"trader":        trader.String(),
		"base_amount":   base,
		"quote_amount":  quote,
		"reserve_base":  state.ReserveBase,
		"reserve_quote": state.ReserveQuote,
	}).Info("Pool operation committed")

	if len(l.sinks) == 0 {
		return
	}

	view := state.View()
	event := &models.TradeEvent{
		Mint:         view.Mint,
		Pool:         view.Address,
		Side:         side,
		Trader:       trader.String(),
		BaseAmount:   base,
		QuoteAmount:  quote,
		ReserveBase:  state.ReserveBase,
		ReserveQuote: state.ReserveQuote,
		InvariantK:   view.InvariantK,
		Timestamp:    state.UpdatedAt,
	}
	// The trade is final; a cancelled request must not keep it from the sinks.
	ctx = context.WithoutCancel(ctx)
	for _, sink := range l.sinks {
		if err := sink.PublishTrade(ctx, event); err != nil {
			l.logger.WithError(err).WithField("mint", event.Mint).Warn("Failed to publish trade event")
		}
	}
}
