package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/domain"
)

// TickWriter is the sink store contract: durable, duplicate-tolerant
// appends of price ticks.
type TickWriter interface {
	Insert(ctx context.Context, ticks []domain.PriceTick) error
	Health(ctx context.Context) error
}

// Writer inserts price ticks synchronously: the consumer acknowledges only
// after Insert returns, so batching across messages would widen the window
// where an ack races a lost write. Duplicate rows from redelivery are
// tolerated; uniqueness is the reader's concern.
type Writer struct {
	log  logger.Logger
	conn ch.Conn
	cfg  config.ClickHouseWriterConfig
}

func NewWriter(log logger.Logger, conn *Conn, cfg config.ClickHouseWriterConfig) (*Writer, error) {
	if conn == nil {
		return nil, fmt.Errorf("clickhouse connection is required")
	}
	if cfg.Table == "" {
		cfg.Table = "price_ticks"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	return &Writer{
		log:  log,
		conn: conn.Native,
		cfg:  cfg,
	}, nil
}

func (w *Writer) Insert(ctx context.Context, ticks []domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	backoff := w.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		lastErr = w.insertOnce(ctx, ticks)
		if lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		w.log.Warnf("Insert of %d ticks failed (attempt %d), retrying in %s: %v",
			len(ticks), attempt+1, backoff, lastErr)
		time.Sleep(backoff)
		backoff *= 2
	}

	return fmt.Errorf("insert %d ticks: %w", len(ticks), lastErr)
}

func (w *Writer) insertOnce(ctx context.Context, ticks []domain.PriceTick) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO `+w.cfg.Table+` (
			time,
			pair_address,
			token0_address,
			token0_symbol,
			token0_reserve,
			token1_address,
			token1_symbol,
			token1_reserve,
			token0_token1,
			token1_token0,
			block_number,
			transaction_hash
		)
	`)
	if err != nil {
		return err
	}

	for i := range ticks {
		t := &ticks[i]
		if err = batch.Append(
			time.Unix(int64(t.BlockTimestamp), 0).UTC(),
			t.PairAddress,
			t.Token0Address,
			t.Token0Symbol,
			t.Token0Reserve, // Decimal(38,0) — send string
			t.Token1Address,
			t.Token1Symbol,
			t.Token1Reserve,
			t.Token0Token1,
			t.Token1Token0,
			t.BlockNumber,
			t.TransactionHash,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}

func (w *Writer) Health(ctx context.Context) error {
	return w.conn.Ping(ctx)
}
