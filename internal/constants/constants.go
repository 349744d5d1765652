package constants

import "time"

// Redis keys
const (
	RedisKeyPoolPrefix = "pool:"
	RedisKeyPoolIndex  = "pools:index"
	RedisKeyLockPrefix = "lock:pool:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelTrades     = "trades:all"
	PubSubChannelMintPrefix = "trades:mint:"
	PubSubChannelSidePrefix = "trades:side:"
)

// PDA seeds of the bonding curve program
const (
	SeedPool  = "bonding_curve"
	SeedVault = "vault"
)

// DefaultProgramID is the deployed bonding curve program.
const DefaultProgramID = "5fYh6iWZzBp4HwizfgeX1NoKWApNCMQNwANjzF5qh7mq"

// Locking
const (
	DefaultLockTTL      = 10 * time.Second
	LockRetryInterval   = 25 * time.Millisecond
	DefaultLockAttempts = 200

	// SettledWriteTimeout bounds the record write that follows a settled transfer.
	SettledWriteTimeout = 10 * time.Second
)

// Native currency
const (
	LamportsPerSOL = 1_000_000_000
	NativeSymbol   = "SOL"
)
