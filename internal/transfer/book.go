package transfer

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

type balanceKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey // zero for native
}

func keyOf(kind models.AssetKind, owner, mint solana.PublicKey) balanceKey {
	if kind == models.AssetNative {
		return balanceKey{owner: owner}
	}
	return balanceKey{owner: owner, mint: mint}
}

// Book is an in-process balance ledger implementing Gateway.
// It backs local development and tests where no chain is available.
type Book struct {
	mu        sync.Mutex
	balances  map[balanceKey]uint64
	custodial map[solana.PublicKey]solana.PublicKey // pool-owned account -> pool
	logger    *logrus.Logger
}

func NewBook(logger *logrus.Logger) *Book {
	if logger == nil {
		logger = logrus.New()
	}
	return &Book{
		balances:  make(map[balanceKey]uint64),
		custodial: make(map[solana.PublicKey]solana.PublicKey),
		logger:    logger,
	}
}

// Credit mints amount into owner's balance (faucet / test setup).
func (b *Book) Credit(kind models.AssetKind, owner, mint solana.PublicKey, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := keyOf(kind, owner, mint)
	sum, carry := bits.Add64(b.balances[k], amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: credit %d to %s", models.ErrArithmeticOverflow, amount, owner)
	}
	b.balances[k] = sum
	return nil
}

// Balance returns owner's balance of kind (and mint for tokens).
func (b *Book) Balance(kind models.AssetKind, owner, mint solana.PublicKey) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[keyOf(kind, owner, mint)]
}

func (b *Book) Begin(ctx context.Context, pool *authority.Capability) (Session, error) {
	if pool == nil {
		return nil, fmt.Errorf("book: pool capability is nil")
	}

	b.mu.Lock()
	b.custodial[pool.Pool()] = pool.Pool()
	b.custodial[pool.Vault()] = pool.Pool()
	b.mu.Unlock()

	return &bookSession{book: b, pool: pool}, nil
}

type bookSession struct {
	book *Book
	pool *authority.Capability
	legs []models.Leg
	done bool
}

func (s *bookSession) MoveValue(ctx context.Context, leg models.Leg) error {
	if s.done {
		return transferErr(leg, fmt.Errorf("session closed"))
	}
	if err := ctx.Err(); err != nil {
		return transferErr(leg, err)
	}
	if leg.From.Equals(leg.To) {
		return transferErr(leg, fmt.Errorf("source and destination are equal"))
	}

	s.book.mu.Lock()
	_, custodial := s.book.custodial[leg.From]
	s.book.mu.Unlock()

	// Pool-owned sources release value only under their own pool's capability.
	if custodial || s.pool.Owns(leg.From) {
		if _, err := s.pool.SignAsPool(leg); err != nil {
			return transferErr(leg, err)
		}
	}

	// Check the leg against balances as they would stand after earlier staged legs.
	s.book.mu.Lock()
	_, err := s.book.simulate(append(s.legs[:len(s.legs):len(s.legs)], leg))
	s.book.mu.Unlock()
	if err != nil {
		return err
	}

	s.legs = append(s.legs, leg)
	return nil
}

func (s *bookSession) Commit(ctx context.Context) error {
	if s.done {
		return fmt.Errorf("book: session closed")
	}
	s.done = true

	s.book.mu.Lock()
	defer s.book.mu.Unlock()

	next, err := s.book.simulate(s.legs)
	if err != nil {
		return err
	}
	for k, v := range next {
		s.book.balances[k] = v
	}

	s.book.logger.WithFields(logrus.Fields{
		"pool": s.pool.Pool().String(),
		"legs": len(s.legs),
	}).Debug("book session committed")
	return nil
}

func (s *bookSession) Rollback() {
	s.done = true
	s.legs = nil
}

// simulate applies legs to a scratch copy of the touched balances. Caller holds mu.
func (b *Book) simulate(legs []models.Leg) (map[balanceKey]uint64, error) {
	scratch := make(map[balanceKey]uint64)
	read := func(k balanceKey) uint64 {
		if v, ok := scratch[k]; ok {
			return v
		}
		return b.balances[k]
	}

	for _, leg := range legs {
		from := keyOf(leg.Kind, leg.From, leg.Mint)
		to := keyOf(leg.Kind, leg.To, leg.Mint)

		bal := read(from)
		if bal < leg.Amount {
			return nil, transferErr(leg, fmt.Errorf("%w: have %d", models.ErrInsufficientFunds, bal))
		}
		credited, carry := bits.Add64(read(to), leg.Amount, 0)
		if carry != 0 {
			return nil, transferErr(leg, models.ErrArithmeticOverflow)
		}
		scratch[from] = bal - leg.Amount
		scratch[to] = credited
	}
	return scratch, nil
}
