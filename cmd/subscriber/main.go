// ============================================================================
// cmd/subscriber/main.go - Trade feed subscriber
// ============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/cache"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/config"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/stream"
)

func main() {
	mint := flag.String("mint", "", "only show trades for this mint")
	side := flag.String("side", "", "only show trades of this side (initialize, buy, sell)")
	pattern := flag.String("pattern", "", "subscribe to a Redis channel pattern instead (e.g. trades:mint:*)")
	wsURL := flag.String("ws", "", "follow the API WebSocket stream (e.g. ws://localhost:8080/v1/stream/trades) instead of Redis")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	handler := func(t *models.TradeEvent) {
		logger.WithFields(logrus.Fields{
			"mint":          t.Mint,
			"side":          t.Side,
			"trader":        t.Trader,
			"base_amount":   t.BaseAmount,
			"quote_amount":  t.QuoteAmount,
			"reserve_base":  t.ReserveBase,
			"reserve_quote": t.ReserveQuote,
		}).Info("trade")
	}

	var err error
	if *wsURL != "" {
		err = followStream(ctx, *wsURL, *mint, *side, cfg.APIKey, logger, handler)
	} else {
		err = followRedis(ctx, cfg.RedisAddr, *mint, *side, *pattern, logger, handler)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("subscription ended")
	}
	logger.Info("Shutting down subscriber...")
}

func followStream(ctx context.Context, raw, mint, side, apiKey string, logger *logrus.Logger, handler func(*models.TradeEvent)) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	q := u.Query()
	if mint != "" {
		q.Set("mint", mint)
	}
	if side != "" {
		q.Set("side", side)
	}
	u.RawQuery = q.Encode()

	logger.WithField("url", u.String()).Info("Subscriber running. Press Ctrl+C to stop.")
	return stream.NewClient(u.String(), apiKey, logger).Listen(ctx, handler)
}

func followRedis(ctx context.Context, addr, mint, side, pattern string, logger *logrus.Logger, handler func(*models.TradeEvent)) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	pubsub := cache.NewPubSubManager(client, logger)
	if pattern != "" {
		logger.WithField("pattern", pattern).Info("Subscriber running. Press Ctrl+C to stop.")
		return pubsub.PSubscribe(ctx, pattern, handler)
	}

	channel := constants.PubSubChannelTrades
	switch {
	case mint != "":
		channel = constants.PubSubChannelMintPrefix + mint
	case side != "":
		channel = constants.PubSubChannelSidePrefix + side
	}

	logger.WithField("channel", channel).Info("Subscriber running. Press Ctrl+C to stop.")
	return pubsub.Subscribe(ctx, channel, handler)
}
