package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/dex"
	"github.com/a6b0x/chain-pipe/internal/domain"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	"github.com/a6b0x/chain-pipe/internal/pubsub"
)

// LogSource is the chain surface the watcher needs; satisfied by
// chain.Client.
type LogSource interface {
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Watcher subscribes to raw factory/pool logs, normalizes them and
// publishes the canonical events. Decode failures are deterministic, so
// the log is dropped with a warning instead of retried.
type Watcher struct {
	log        logger.Logger
	chain      LogSource
	normalizer *dex.Normalizer
	pub        pubsub.Publisher
	subjects   config.SubjectsConfig
	factory    common.Address
}

func NewWatcher(log logger.Logger, chainSrc LogSource, pub pubsub.Publisher, subjects config.SubjectsConfig, factory common.Address) (*Watcher, error) {
	if chainSrc == nil {
		return nil, fmt.Errorf("chain log source is required")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	normalizer, err := dex.NewNormalizer()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		log:        log,
		chain:      chainSrc,
		normalizer: normalizer,
		pub:        pub,
		subjects:   subjects,
		factory:    factory,
	}, nil
}

// RunPairCreated streams factory PairCreated logs until ctx is cancelled.
func (w *Watcher) RunPairCreated(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.factory},
		Topics:    [][]common.Hash{{w.normalizer.PairCreatedTopic()}},
	}
	return w.run(ctx, query, w.publishPairCreated)
}

// RunSync streams Sync logs of the given pools until ctx is cancelled.
func (w *Watcher) RunSync(ctx context.Context, pairs []common.Address) error {
	if len(pairs) == 0 {
		return errors.New("no pairs to watch; enrich some pairs first")
	}
	query := ethereum.FilterQuery{
		Addresses: pairs,
		Topics:    [][]common.Hash{{w.normalizer.SyncTopic()}},
	}
	return w.run(ctx, query, w.publishSync)
}

func (w *Watcher) run(ctx context.Context, query ethereum.FilterQuery, publish func(context.Context, types.Log) error) error {
	logs := make(chan types.Log, 256)
	sub, err := w.chain.SubscribeLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	w.log.Infof("Watching %d address(es)", len(query.Addresses))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("log subscription: %w", err)
		case rawLog := <-logs:
			if rawLog.Removed {
				// Reorged-out log; the replacement arrives on the new chain.
				continue
			}
			if err := publish(ctx, rawLog); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) publishPairCreated(ctx context.Context, rawLog types.Log) error {
	ev, err := w.normalizer.NormalizePairCreated(rawLog, w.timestamp(ctx, rawLog))
	if err != nil {
		w.log.Warnf("Dropping undecodable log in tx %s: %v", rawLog.TxHash, err)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode pair-created event: %w", err)
	}
	if err := w.pub.Publish(ctx, w.subjects.PairCreated, payload); err != nil {
		return err
	}

	metrics.EventsPublished.WithLabelValues(w.subjects.PairCreated).Inc()
	w.log.Infof("Pair created: %s", domain.CanonicalAddress(ev.Pair))
	return nil
}

func (w *Watcher) publishSync(ctx context.Context, rawLog types.Log) error {
	ev, err := w.normalizer.NormalizeSync(rawLog, w.timestamp(ctx, rawLog))
	if err != nil {
		w.log.Warnf("Dropping undecodable log in tx %s: %v", rawLog.TxHash, err)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode sync event: %w", err)
	}
	if err := w.pub.Publish(ctx, w.subjects.Sync, payload); err != nil {
		return err
	}

	metrics.EventsPublished.WithLabelValues(w.subjects.Sync).Inc()
	w.log.Debugf("Sync: pair=%s reserves=%s/%s",
		domain.CanonicalAddress(ev.Pair), ev.Reserve0, ev.Reserve1)
	return nil
}

// timestamp resolves the block timestamp for an included log; a log
// without block metadata keeps the zero default rather than failing.
func (w *Watcher) timestamp(ctx context.Context, rawLog types.Log) uint64 {
	if rawLog.BlockNumber == 0 {
		return 0
	}
	ts, err := w.chain.BlockTimestamp(ctx, rawLog.BlockNumber)
	if err != nil {
		w.log.Warnf("Block timestamp lookup failed for block %d: %v", rawLog.BlockNumber, err)
		return 0
	}
	return ts
}
