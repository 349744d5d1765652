// ============================================================================
// cache/pubsub.go - Redis Pub/Sub trade feed
// ============================================================================
package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/constants"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
)

type PubSubManager struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewPubSubManager(client redis.UniversalClient, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// TradeChannels lists every channel a trade is fanned out to.
func TradeChannels(trade *models.TradeEvent) []string {
	return []string{
		constants.PubSubChannelTrades,
		constants.PubSubChannelMintPrefix + trade.Mint,
		constants.PubSubChannelSidePrefix + trade.Side,
	}
}

// PublishTrade implements storage.TradeSink.
func (p *PubSubManager) PublishTrade(ctx context.Context, trade *models.TradeEvent) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	for _, channel := range TradeChannels(trade) {
		pipe.Publish(ctx, channel, data)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Subscribe blocks delivering trades from channel until ctx is cancelled.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler storage.TradeHandler) error {
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	p.logger.WithField("channel", channel).Info("Subscribed to channel")
	return p.consume(ctx, pubsub, handler)
}

// PSubscribe is Subscribe for a pattern such as "trades:mint:*".
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler storage.TradeHandler) error {
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	p.logger.WithField("pattern", pattern).Info("Subscribed to pattern")
	return p.consume(ctx, pubsub, handler)
}

func (p *PubSubManager) consume(ctx context.Context, pubsub *redis.PubSub, handler storage.TradeHandler) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var trade models.TradeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &trade); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("Error unmarshaling trade")
				continue
			}
			handler(&trade)
		}
	}
}
