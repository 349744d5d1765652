package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

const createTradesTable = `
	CREATE TABLE IF NOT EXISTS trades (
		timestamp     DateTime64(3, 'UTC'),
		mint          String,
		pool          String,
		side          LowCardinality(String),
		trader        String,
		base_amount   UInt64,
		quote_amount  UInt64,
		reserve_base  UInt64,
		reserve_quote UInt64,
		invariant_k   String
	) ENGINE = MergeTree
	ORDER BY (mint, timestamp)
`

type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore keeps the trade history. It is a TradeSink.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, opts ClickHouseOptions, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createTradesTable); err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

// PublishTrade implements storage.TradeSink.
func (c *ClickHouseStore) PublishTrade(ctx context.Context, trade *models.TradeEvent) error {
	query := `
		INSERT INTO trades (
			timestamp, mint, pool, side, trader,
			base_amount, quote_amount, reserve_base, reserve_quote, invariant_k
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		trade.Timestamp,
		trade.Mint,
		trade.Pool,
		trade.Side,
		trade.Trader,
		trade.BaseAmount,
		trade.QuoteAmount,
		trade.ReserveBase,
		trade.ReserveQuote,
		trade.InvariantK,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades for mint, newest first.
func (c *ClickHouseStore) RecentTrades(ctx context.Context, mint string, limit int) ([]*models.TradeEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := c.conn.Query(ctx, `
		SELECT timestamp, mint, pool, side, trader,
			base_amount, quote_amount, reserve_base, reserve_quote, invariant_k
		FROM trades
		WHERE mint = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, mint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TradeEvent, 0, limit)
	for rows.Next() {
		var t models.TradeEvent
		if err := rows.Scan(
			&t.Timestamp, &t.Mint, &t.Pool, &t.Side, &t.Trader,
			&t.BaseAmount, &t.QuoteAmount, &t.ReserveBase, &t.ReserveQuote, &t.InvariantK,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
