package storage

import (
	"context"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// MutateFunc edits a pool record inside a store transaction.
// Returning an error discards every change made to the record.
type MutateFunc func(state *models.PoolState) error

// PoolStore persists one PoolState per mint.
// Create and Update hold exclusive access to the mint's record for the whole
// call, so fn runs as a single writer and its effects commit all-or-nothing.
// Once fn returns nil the draft is persisted even if ctx is cancelled
// afterwards: fn may already have moved value that the record must reflect.
type PoolStore interface {
	// Create stores state if no record exists for state.Mint, after fn accepts it.
	// Fails with models.ErrAlreadyInitialized otherwise.
	Create(ctx context.Context, state *models.PoolState, fn MutateFunc) (*models.PoolState, error)

	// Load returns a copy of the record or models.ErrUninitialized.
	Load(ctx context.Context, mint solana.PublicKey) (*models.PoolState, error)

	// Update applies fn to a copy of the record and persists it when fn succeeds.
	Update(ctx context.Context, mint solana.PublicKey, fn MutateFunc) (*models.PoolState, error)

	// List returns every stored pool.
	List(ctx context.Context) ([]*models.PoolState, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// TradeSink receives trade events after a pool operation commits.
type TradeSink interface {
	PublishTrade(ctx context.Context, event *models.TradeEvent) error
}

// TradeHandler is a function that processes trade events
type TradeHandler func(*models.TradeEvent)

// SettledContext returns the context a store writes with after fn succeeded.
// It keeps ctx's values but not its cancellation or deadline.
func SettledContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.SettledWriteTimeout)
}
