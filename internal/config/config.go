package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Gateway backends
const (
	GatewayBook   = "book"
	GatewayDryRun = "dryrun"
	GatewaySolana = "solana"
)

type Config struct {
	// API settings
	APIAddr      string
	APIKey       string
	DevMode      bool
	RateLimitRPS float64
	RateBurst    int
	StreamBuffer int // per-subscriber queue of the live trade stream; 0 disables it

	// Program
	ProgramID string

	// Backends
	StoreBackend   string
	GatewayBackend string

	// Redis settings
	RedisAddr    string
	LockTTL      time.Duration
	LockAttempts int
	PublishFeed  bool

	// Postgres settings
	PostgresDSN string

	// ClickHouse settings (empty address disables the trade history)
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// RPC settings
	RPCUrl       string
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Wallet (solana gateway only)
	WalletPrivateKey string
	Commitment       string

	LogLevel string
}

func Load() *Config {
	return &Config{
		// API
		APIAddr:      getEnv("API_ADDR", ":8080"),
		APIKey:       getEnv("API_KEY", ""),
		DevMode:      getBoolEnv("DEV_MODE", false),
		RateLimitRPS: getFloatEnv("RATE_LIMIT_RPS", 20),
		RateBurst:    getIntEnv("RATE_LIMIT_BURST", 40),
		StreamBuffer: getIntEnv("STREAM_BUFFER", 64),

		// Program
		ProgramID: getEnv("PROGRAM_ID", constants.DefaultProgramID),

		// Backends
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		GatewayBackend: strings.ToLower(getEnv("GATEWAY_BACKEND", GatewayBook)),

		// Redis
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		LockTTL:      getDurationEnv("LOCK_TTL", constants.DefaultLockTTL),
		LockAttempts: getIntEnv("LOCK_ATTEMPTS", constants.DefaultLockAttempts),
		PublishFeed:  getBoolEnv("PUBLISH_TRADES", true),

		// Postgres
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// Wallet
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		Commitment:       getEnv("WALLET_COMMITMENT", "confirmed"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("PROGRAM_ID: %w", err)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}

	switch c.GatewayBackend {
	case GatewayBook, GatewayDryRun:
	case GatewaySolana:
		if c.WalletPrivateKey == "" {
			return fmt.Errorf("WALLET_PRIVATE_KEY is required for the solana gateway")
		}
		if c.RPCUrl == "" {
			return fmt.Errorf("SOLANA_RPC_URL is required for the solana gateway")
		}
	default:
		return fmt.Errorf("GATEWAY_BACKEND: unknown backend %q", c.GatewayBackend)
	}

	if c.RateLimitRPS <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.StreamBuffer < 0 {
		return fmt.Errorf("STREAM_BUFFER must not be negative")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if !c.DevMode && c.APIKey == "" {
		return fmt.Errorf("API_KEY is required outside dev mode")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Warnings lists settings that are valid but limit what the service can do.
func (c *Config) Warnings() []string {
	var out []string
	if c.GatewayBackend == GatewaySolana {
		out = append(out, "GATEWAY_BACKEND=solana: only initialize can land; buy and sell move value out of "+
			"pool-owned accounts, which needs the on-chain program's signature, and will fail")
	}
	if c.DevMode && c.APIKey == "" {
		out = append(out, "DEV_MODE without API_KEY: every endpoint is unauthenticated")
	}
	return out
}

// NewLogger builds the process logger from LogLevel.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
