package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
)

var (
	ErrPoolBusy = errors.New("pool is locked by another writer")
	ErrLockLost = errors.New("pool lock expired before write")
)

// Delete the lock only if we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Write the pool record only if we still hold its lock.
var writeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SADD", KEYS[3], ARGV[3])
return 1
`)

// RedisPoolStore keeps pool records as JSON under pool:<mint> and serializes
// writers per mint with a SET NX PX lock.
type RedisPoolStore struct {
	client   redis.UniversalClient
	lockTTL  time.Duration
	attempts int
	logger   *logrus.Logger
}

type RedisStoreOption func(*RedisPoolStore)

func WithLockTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisPoolStore) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithLockAttempts(n int) RedisStoreOption {
	return func(s *RedisPoolStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

func NewRedisPoolStore(client redis.UniversalClient, logger *logrus.Logger, opts ...RedisStoreOption) (*RedisPoolStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &RedisPoolStore{
		client:   client,
		lockTTL:  constants.DefaultLockTTL,
		attempts: constants.DefaultLockAttempts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisPoolStore) Create(ctx context.Context, state *models.PoolState, fn storage.MutateFunc) (*models.PoolState, error) {
	mint := state.Mint
	token, err := s.acquire(ctx, mint)
	if err != nil {
		return nil, err
	}
	defer s.release(mint, token)

	n, err := s.client.Exists(ctx, poolKey(mint)).Result()
	if err != nil {
		return nil, fmt.Errorf("check pool: %w", err)
	}
	if n > 0 {
		return nil, models.ErrAlreadyInitialized
	}

	draft := state.Clone()
	if fn != nil {
		if err := fn(draft); err != nil {
			return nil, err
		}
	}

	wctx, cancel := storage.SettledContext(ctx)
	defer cancel()
	if err := s.write(wctx, token, draft); err != nil {
		return nil, err
	}
	return draft.Clone(), nil
}

func (s *RedisPoolStore) Load(ctx context.Context, mint solana.PublicKey) (*models.PoolState, error) {
	val, err := s.client.Get(ctx, poolKey(mint)).Result()
	if err == redis.Nil {
		return nil, models.ErrUninitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return decodePool(val)
}

func (s *RedisPoolStore) Update(ctx context.Context, mint solana.PublicKey, fn storage.MutateFunc) (*models.PoolState, error) {
	token, err := s.acquire(ctx, mint)
	if err != nil {
		return nil, err
	}
	defer s.release(mint, token)

	draft, err := s.Load(ctx, mint)
	if err != nil {
		return nil, err
	}
	if err := fn(draft); err != nil {
		return nil, err
	}

	wctx, cancel := storage.SettledContext(ctx)
	defer cancel()
	if err := s.write(wctx, token, draft); err != nil {
		return nil, err
	}
	return draft.Clone(), nil
}

func (s *RedisPoolStore) List(ctx context.Context) ([]*models.PoolState, error) {
	mints, err := s.client.SMembers(ctx, constants.RedisKeyPoolIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list pools index: %w", err)
	}
	if len(mints) == 0 {
		return []*models.PoolState{}, nil
	}

	keys := make([]string, 0, len(mints))
	for _, m := range mints {
		keys = append(keys, constants.RedisKeyPoolPrefix+m)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget pools: %w", err)
	}

	out := make([]*models.PoolState, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodePool(raw)
		if err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable pool record")
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint.String() < out[j].Mint.String() })
	return out, nil
}

func (s *RedisPoolStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisPoolStore) Close() error {
	return s.client.Close()
}

func (s *RedisPoolStore) acquire(ctx context.Context, mint solana.PublicKey) (string, error) {
	token, err := newLockToken()
	if err != nil {
		return "", err
	}

	for i := 0; i < s.attempts; i++ {
		ok, err := s.client.SetNX(ctx, lockKey(mint), token, s.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("lock pool: %w", err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(constants.LockRetryInterval):
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPoolBusy, mint)
}

func (s *RedisPoolStore) release(mint solana.PublicKey, token string) {
	// The caller's context may already be cancelled; the lock must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, s.client, []string{lockKey(mint)}, token).Err(); err != nil {
		s.logger.WithError(err).WithField("mint", mint.String()).Warn("Failed to release pool lock")
	}
}

func (s *RedisPoolStore) write(ctx context.Context, token string, state *models.PoolState) error {
	b, err := json.Marshal(state.View())
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	mint := state.Mint
	ok, err := writeScript.Run(ctx, s.client,
		[]string{lockKey(mint), poolKey(mint), constants.RedisKeyPoolIndex},
		token, b, mint.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if ok != 1 {
		s.logger.WithField("mint", mint.String()).Error("Pool lock expired while settling")
		return fmt.Errorf("%w: %s", ErrLockLost, mint)
	}
	return nil
}

func decodePool(raw string) (*models.PoolState, error) {
	var v models.PoolView
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("unmarshal pool: %w", err)
	}
	return v.State()
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func poolKey(mint solana.PublicKey) string {
	return constants.RedisKeyPoolPrefix + mint.String()
}

func lockKey(mint solana.PublicKey) string {
	return constants.RedisKeyLockPrefix + mint.String()
}
