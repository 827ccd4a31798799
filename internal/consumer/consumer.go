package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/metrics"
)

// PermanentError marks a failure that the same bytes will always produce
// (a decode error). The coordinator acknowledges the message and drops it;
// everything else is transient and left for broker redelivery.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the coordinator will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// HandleFunc processes one message payload. A nil return acknowledges; a
// PermanentError acknowledges and counts a drop; any other error skips the
// acknowledgment so the broker redelivers.
type HandleFunc func(ctx context.Context, data []byte) error

// Fetcher is the pull-subscription surface the coordinator needs.
type Fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Coordinator runs the durable pull loop for one consuming service. Per
// message the states are Pulled -> Processing -> Acked | Redelivered;
// there is no failed terminal state for transient errors, the broker's
// redelivery timer is the retry loop.
type Coordinator struct {
	log     logger.Logger
	sub     Fetcher
	handle  HandleFunc
	durable string

	batch    int
	wait     time.Duration
	nakDelay time.Duration
}

func New(log logger.Logger, durable string, sub Fetcher, cfg *config.ConsumerConfig, handle HandleFunc) (*Coordinator, error) {
	if sub == nil {
		return nil, errors.New("pull subscription is required")
	}
	if handle == nil {
		return nil, errors.New("handler is required")
	}
	if cfg == nil {
		return nil, errors.New("consumer config is required")
	}

	return &Coordinator{
		log:      log,
		sub:      sub,
		handle:   handle,
		durable:  durable,
		batch:    cfg.BatchSize,
		wait:     cfg.FetchWait,
		nakDelay: cfg.NakDelay,
	}, nil
}

// Run pulls and processes batches until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Infof("Consumer %s started", c.durable)

	for {
		if err := ctx.Err(); err != nil {
			c.log.Infof("Consumer %s stopped", c.durable)
			return nil
		}

		msgs, err := c.sub.Fetch(c.batch, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) {
				c.log.Infof("Consumer %s stopped", c.durable)
				return nil
			}
			return fmt.Errorf("consumer %s fetch: %w", c.durable, err)
		}

		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, msg *nats.Msg) {
	if meta, err := msg.Metadata(); err == nil {
		metrics.Redeliveries.WithLabelValues(c.durable).Observe(float64(meta.NumDelivered))
		if meta.NumDelivered > 1 {
			c.log.Debugf("Redelivery %d on %s (seq=%d)", meta.NumDelivered, c.durable, meta.Sequence.Stream)
		}
	}

	err := c.handle(ctx, msg.Data)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			c.log.Errorf("Ack failed on %s: %v", c.durable, ackErr)
			return
		}
		metrics.MessagesProcessed.WithLabelValues(c.durable).Inc()
		return
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		// The bytes will never decode; ack to stop infinite redelivery.
		c.log.Errorf("Dropping undecodable message on %s: %v", c.durable, perm.Err)
		if ackErr := msg.Ack(); ackErr != nil {
			c.log.Errorf("Ack failed on %s: %v", c.durable, ackErr)
		}
		metrics.MessagesDropped.WithLabelValues(c.durable).Inc()
		return
	}

	// Transient: leave unacknowledged, optionally hinting the broker at a
	// redelivery delay.
	c.log.Warnf("Transient failure on %s, leaving for redelivery: %v", c.durable, err)
	metrics.MessagesRetried.WithLabelValues(c.durable).Inc()
	if c.nakDelay > 0 {
		if nakErr := msg.NakWithDelay(c.nakDelay); nakErr != nil {
			c.log.Errorf("Nak failed on %s: %v", c.durable, nakErr)
		}
	}
}
