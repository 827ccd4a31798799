package service

import (
	"context"
	"fmt"

	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/dedupe"
	"github.com/a6b0x/chain-pipe/internal/domain"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	"github.com/a6b0x/chain-pipe/internal/stores/clickhouse"
)

// Sink persists price ticks. The store itself tolerates duplicates; the
// optional deduper turns at-least-once into effectively-once on
// (transaction_hash, pair_address) for cleaner aggregates.
type Sink struct {
	log     logger.Logger
	writer  clickhouse.TickWriter
	deduper dedupe.Deduper // nil disables dedupe
}

func NewSink(log logger.Logger, writer clickhouse.TickWriter, deduper dedupe.Deduper) (*Sink, error) {
	if writer == nil {
		return nil, fmt.Errorf("tick writer is required")
	}
	return &Sink{log: log, writer: writer, deduper: deduper}, nil
}

// HandleMessage is the price-tick consumer handler. The write must
// complete before the message is acknowledged; marking the tick seen
// comes after the write so a crash in between only causes a duplicate,
// never a loss.
func (s *Sink) HandleMessage(ctx context.Context, data []byte) error {
	tick, err := domain.DecodePriceTick(data)
	if err != nil {
		return consumer.Permanent(err)
	}

	if s.deduper != nil {
		dup, err := s.deduper.IsDuplicate(ctx, tick.TickID())
		if err != nil {
			return fmt.Errorf("dedupe check for %s: %w", tick.TickID(), err)
		}
		if dup {
			s.log.Debugf("Duplicate tick ignored: %s", tick.TickID())
			return nil
		}
	}

	if err := s.writer.Insert(ctx, []domain.PriceTick{tick}); err != nil {
		return err
	}
	metrics.TicksWritten.Inc()

	if s.deduper != nil {
		if err := s.deduper.MarkSeen(ctx, tick.TickID()); err != nil {
			// Not critical: a redelivery after this writes a duplicate row,
			// which the store tolerates.
			s.log.Errorf("Failed to mark tick seen %s: %v", tick.TickID(), err)
		}
	}

	return nil
}
