package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/cache"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/config"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/ledger"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/metrics"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/rpc"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/server"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage/postgres"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/stream"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/wallet"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// load .env BEFORE anything reads os.Getenv
	loadEnv(boot)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		boot.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.NewLogger()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	var rclient *redis.Client
	if cfg.StoreBackend == config.StoreRedis || cfg.PublishFeed {
		rclient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rclient.Ping(ctx).Err(); err != nil {
			if cfg.StoreBackend == config.StoreRedis {
				logger.WithError(err).Fatal("failed to connect to Redis")
			}
			logger.WithError(err).Warn("Redis unavailable, trade feed disabled")
			_ = rclient.Close()
			rclient = nil
		}
	}

	store, err := buildStore(ctx, cfg, rclient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool store")
	}
	closers = append(closers, store)

	gateway, book, err := buildGateway(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create transfer gateway")
	}

	var sinks []storage.TradeSink
	if rclient != nil && cfg.PublishFeed {
		sinks = append(sinks, cache.NewPubSubManager(rclient, logger))
	}

	var feed *stream.Hub
	if cfg.StreamBuffer > 0 {
		feed = stream.NewHub(cfg.StreamBuffer, logger)
		closers = append(closers, feed)
		sinks = append(sinks, feed)
	}

	var history server.TradeHistory
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseOptions{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, trade history disabled")
		} else {
			closers = append(closers, ch)
			sinks = append(sinks, ch)
			history = ch
		}
	}

	collector, err := metrics.New()
	if err != nil {
		logger.WithError(err).Fatal("failed to register metrics")
	}

	l, err := ledger.New(ledger.Config{
		ProgramID: solana.MustPublicKeyFromBase58(cfg.ProgramID),
		Store:     store,
		Gateway:   gateway,
		Sinks:     sinks,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create ledger")
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Ledger:  l,
			Store:   store,
			Book:    book,
			History: history,
			Feed:    feed,
			DevMode: cfg.DevMode,
			Logger:  logger,
		},
		Config: server.ServerConfig{
			Addr:       cfg.APIAddr,
			DevMode:    cfg.DevMode,
			APIKey:     cfg.APIKey,
			TradeRate:  rate.Limit(cfg.RateLimitRPS),
			TradeBurst: cfg.RateBurst,
		},
		Metrics: collector.Registry(),
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		// Hijacked stream connections are not tracked by Shutdown.
		if feed != nil {
			_ = feed.Close()
		}
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":    cfg.APIAddr,
		"store":   cfg.StoreBackend,
		"gateway": cfg.GatewayBackend,
		"program": cfg.ProgramID,
	}).Info("api server starting")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("shutdown did not complete")
	}
}

func buildStore(ctx context.Context, cfg *config.Config, rclient *redis.Client, logger *logrus.Logger) (storage.PoolStore, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		return cache.NewRedisPoolStore(rclient, logger,
			cache.WithLockTTL(cfg.LockTTL),
			cache.WithLockAttempts(cfg.LockAttempts),
		)
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		logger.Warn("using in-memory pool store; pools are lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

// buildGateway returns the configured gateway and, for the book backend,
// the book itself so the dev faucet can credit it.
func buildGateway(cfg *config.Config, logger *logrus.Logger) (transfer.Gateway, *transfer.Book, error) {
	switch cfg.GatewayBackend {
	case config.GatewaySolana:
		client := rpc.NewClient(rpc.ClientConfig{
			BaseURL:      cfg.RPCUrl,
			Timeout:      cfg.HTTPTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
		opts := wallet.DefaultSendOptions()
		opts.Commitment = cfg.Commitment
		w, err := wallet.NewWallet(client, cfg.WalletPrivateKey, &opts)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("payer", w.Address()).Info("solana gateway enabled")
		gw, err := transfer.NewSolanaGateway(w, logger)
		return gw, nil, err

	case config.GatewayDryRun:
		gw, err := transfer.NewSolanaGateway(&transfer.DryRunSubmitter{}, logger)
		return gw, nil, err

	default:
		book := transfer.NewBook(logger)
		return book, book, nil
	}
}
