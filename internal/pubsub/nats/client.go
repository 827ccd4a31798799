package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/config"
)

// Client owns the NATS connection and its JetStream context. One client is
// shared per service; subjects live on one stream so durable consumers can
// filter per topic.
type Client struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log logger.Logger

	stream   string
	subjects config.SubjectsConfig
}

func Connect(log logger.Logger, cfg *config.NATSConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nats config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("chain-pipe"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnect
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Client{
		nc:       nc,
		js:       js,
		log:      log,
		stream:   cfg.Stream,
		subjects: cfg.Subjects,
	}, nil
}

// EnsureStream creates the event stream if it does not exist yet. Safe to
// call from every service at start.
func (c *Client) EnsureStream() error {
	_, err := c.js.StreamInfo(c.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", c.stream, err)
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name: c.stream,
		Subjects: []string{
			c.subjects.PairCreated,
			c.subjects.Sync,
			c.subjects.PriceTick,
		},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", c.stream, err)
	}

	c.log.Infof("Created JetStream stream %s", c.stream)
	return nil
}

// Publish persists data on the stream subject and waits for the broker ack.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// PullConsumer binds a durable named pull consumer to the subject. The
// delivery cursor is broker-managed and survives restarts; fromStart
// replays the retained history when the durable is first created.
func (c *Client) PullConsumer(subject, durable string, fromStart bool, ackWait time.Duration) (*nats.Subscription, error) {
	deliver := nats.DeliverNew()
	if fromStart {
		deliver = nats.DeliverAll()
	}

	sub, err := c.js.PullSubscribe(subject, durable,
		nats.BindStream(c.stream),
		deliver,
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(-1), // redelivery is the retry loop, uncapped
	)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s on %s: %w", durable, subject, err)
	}
	return sub, nil
}

// KeyValue creates (or opens) the pair bucket.
func (c *Client) KeyValue(bucket string) (nats.KeyValue, error) {
	kv, err := c.js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("bucket %s: %w", bucket, err)
	}

	kv, err = c.js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return kv, nil
}

func (c *Client) Health(_ context.Context) error {
	if !c.Ready() {
		return errors.New("nats connection not ready")
	}
	return nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}
