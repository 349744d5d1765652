package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
)

const schema = `
	CREATE TABLE IF NOT EXISTS pools (
		mint          TEXT PRIMARY KEY,
		address       TEXT NOT NULL,
		bump          SMALLINT NOT NULL,
		vault         TEXT NOT NULL,
		vault_bump    SMALLINT NOT NULL,
		reserve_base  NUMERIC(20, 0) NOT NULL DEFAULT 0,
		reserve_quote NUMERIC(20, 0) NOT NULL DEFAULT 0,
		invariant_k   NUMERIC(78, 0) NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)
`

const selectPool = `
	SELECT mint, address, bump, vault, vault_bump,
		reserve_base::text, reserve_quote::text, invariant_k::text,
		created_at, updated_at
	FROM pools
`

// Store is a PoolStore backed by Postgres. Writers on one mint serialize
// on the row lock.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.PoolStore = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the pools table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create pools table: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, state *models.PoolState, fn storage.MutateFunc) (*models.PoolState, error) {
	var out *models.PoolState
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// The inserted row doubles as the creation lock: a concurrent creator
		// blocks on the primary key until this transaction ends.
		tag, err := tx.Exec(ctx, `
			INSERT INTO pools (mint, address, bump, vault, vault_bump, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (mint) DO NOTHING
		`,
			state.Mint.String(), state.Address.String(), int16(state.Bump),
			state.Vault.String(), int16(state.VaultBump), state.CreatedAt, state.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert pool: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrAlreadyInitialized
		}

		draft := state.Clone()
		if fn != nil {
			if err := fn(draft); err != nil {
				return err
			}
		}

		settled, cancel := storage.SettledContext(ctx)
		defer cancel()
		if err := writePool(settled, tx, draft); err != nil {
			return err
		}
		out = draft
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Load(ctx context.Context, mint solana.PublicKey) (*models.PoolState, error) {
	return scanPool(s.pool.QueryRow(ctx, selectPool+` WHERE mint = $1`, mint.String()))
}

func (s *Store) Update(ctx context.Context, mint solana.PublicKey, fn storage.MutateFunc) (*models.PoolState, error) {
	var out *models.PoolState
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		draft, err := scanPool(tx.QueryRow(ctx, selectPool+` WHERE mint = $1 FOR UPDATE`, mint.String()))
		if err != nil {
			return err
		}
		if err := fn(draft); err != nil {
			return err
		}

		settled, cancel := storage.SettledContext(ctx)
		defer cancel()
		if err := writePool(settled, tx, draft); err != nil {
			return err
		}
		out = draft
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]*models.PoolState, error) {
	rows, err := s.pool.Query(ctx, selectPool+` ORDER BY mint`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PoolState, 0)
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// inTx runs fn in a transaction. Once fn has succeeded the commit no longer
// follows ctx's cancellation.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	fnErr := fn(tx)

	settled, cancel := storage.SettledContext(ctx)
	defer cancel()
	if fnErr != nil {
		_ = tx.Rollback(settled)
		return fnErr
	}
	if err := tx.Commit(settled); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func writePool(ctx context.Context, tx pgx.Tx, p *models.PoolState) error {
	k := "0"
	if p.InvariantK != nil {
		k = p.InvariantK.ToBig().String()
	}
	_, err := tx.Exec(ctx, `
		UPDATE pools SET
			reserve_base = $2::text::numeric,
			reserve_quote = $3::text::numeric,
			invariant_k = $4::text::numeric,
			updated_at = $5
		WHERE mint = $1
	`,
		p.Mint.String(),
		strconv.FormatUint(p.ReserveBase, 10),
		strconv.FormatUint(p.ReserveQuote, 10),
		k,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	return nil
}

func scanPool(row pgx.Row) (*models.PoolState, error) {
	var (
		mint, address, vault string
		bump, vaultBump      int16
		base, quote, k       string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&mint, &address, &bump, &vault, &vaultBump, &base, &quote, &k, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUninitialized
		}
		return nil, fmt.Errorf("scan pool: %w", err)
	}

	view := models.PoolView{
		Mint:      mint,
		Address:   address,
		Bump:      uint8(bump),
		Vault:     vault,
		VaultBump: uint8(vaultBump),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	var err error
	if view.ReserveBase, err = strconv.ParseUint(base, 10, 64); err != nil {
		return nil, fmt.Errorf("parse reserve_base: %w", err)
	}
	if view.ReserveQuote, err = strconv.ParseUint(quote, 10, 64); err != nil {
		return nil, fmt.Errorf("parse reserve_quote: %w", err)
	}
	view.InvariantK = k
	return view.State()
}
