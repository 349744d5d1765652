// Package transfer moves balances between traders and pools.
//
// A Gateway opens a Session per pool operation. The ledger stages every leg
// with MoveValue and then commits once, so either all legs of an operation
// land or none do.
package transfer

import (
	"context"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// Gateway opens transfer sessions on behalf of one pool.
type Gateway interface {
	Begin(ctx context.Context, pool *authority.Capability) (Session, error)
}

// Session stages legs and settles them atomically.
type Session interface {
	// MoveValue stages one leg. Failures are *models.TransferError.
	MoveValue(ctx context.Context, leg models.Leg) error

	// Commit settles every staged leg or none of them.
	Commit(ctx context.Context) error

	// Rollback discards staged legs. Safe to call after Commit.
	Rollback()
}

func transferErr(leg models.Leg, err error) error {
	return &models.TransferError{Leg: leg, Err: err}
}
