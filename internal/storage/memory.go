package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// MemoryStore is an in-process PoolStore with one mutex per mint.
type MemoryStore struct {
	mu    sync.Mutex
	pools map[solana.PublicKey]*models.PoolState
	locks map[solana.PublicKey]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools: make(map[solana.PublicKey]*models.PoolState),
		locks: make(map[solana.PublicKey]*sync.Mutex),
	}
}

func (m *MemoryStore) lockFor(mint solana.PublicKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[mint]
	if !ok {
		l = &sync.Mutex{}
		m.locks[mint] = l
	}
	return l
}

func (m *MemoryStore) get(mint solana.PublicKey) (*models.PoolState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[mint]
	return p, ok
}

func (m *MemoryStore) put(state *models.PoolState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[state.Mint] = state
}

func (m *MemoryStore) Create(ctx context.Context, state *models.PoolState, fn MutateFunc) (*models.PoolState, error) {
	l := m.lockFor(state.Mint)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := m.get(state.Mint); ok {
		return nil, models.ErrAlreadyInitialized
	}

	draft := state.Clone()
	if fn != nil {
		if err := fn(draft); err != nil {
			return nil, err
		}
	}

	m.put(draft)
	return draft.Clone(), nil
}

func (m *MemoryStore) Load(ctx context.Context, mint solana.PublicKey) (*models.PoolState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.get(mint)
	if !ok {
		return nil, models.ErrUninitialized
	}
	return p.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, mint solana.PublicKey, fn MutateFunc) (*models.PoolState, error) {
	l := m.lockFor(mint)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := m.get(mint)
	if !ok {
		return nil, models.ErrUninitialized
	}

	draft := current.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}

	m.put(draft)
	return draft.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*models.PoolState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	out := make([]*models.PoolState, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Mint.String() < out[j].Mint.String()
	})
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}
