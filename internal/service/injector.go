package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/domain"
	"github.com/a6b0x/chain-pipe/internal/price"
	"github.com/a6b0x/chain-pipe/internal/pubsub"
)

// PairGetter is the read side of the pair cache. A missing pair is
// pairkv.ErrPairNotFound.
type PairGetter interface {
	Get(ctx context.Context, pair common.Address) (domain.Pair, error)
}

// Injector prices Sync events against the enriched pair cache and
// publishes the resulting ticks.
type Injector struct {
	log     logger.Logger
	pairs   PairGetter
	pub     pubsub.Publisher
	subject string
}

func NewInjector(log logger.Logger, pairs PairGetter, pub pubsub.Publisher, subject string) (*Injector, error) {
	if pairs == nil {
		return nil, fmt.Errorf("pair getter is required")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("output subject is required")
	}
	return &Injector{log: log, pairs: pairs, pub: pub, subject: subject}, nil
}

// HandleMessage is the sync consumer handler. A pair missing from the
// cache is a transient condition: the message stays unacknowledged until
// the enricher catches up and redelivery finds the record. That retry is
// the only ordering mechanism between the two topics.
func (i *Injector) HandleMessage(ctx context.Context, data []byte) error {
	ev, err := domain.DecodeSyncEvent(data)
	if err != nil {
		return consumer.Permanent(err)
	}

	pair, err := i.pairs.Get(ctx, ev.Pair)
	if err != nil {
		return err
	}

	tick, err := price.Compute(ev, pair)
	if err != nil {
		return consumer.Permanent(err)
	}
	if tick == nil {
		// Empty pool: a legitimate final state, acknowledged without output.
		i.log.Warnf("Zero reserve0 on pair %s, no tick", domain.CanonicalAddress(ev.Pair))
		return nil
	}

	payload, err := json.Marshal(tick)
	if err != nil {
		return consumer.Permanent(fmt.Errorf("encode tick for %s: %w", tick.PairAddress, err))
	}
	if err := i.pub.Publish(ctx, i.subject, payload); err != nil {
		return err
	}

	i.log.Debugf("Published tick %s: %s/%s = %g",
		tick.PairAddress, tick.Token0Symbol, tick.Token1Symbol, tick.Token0Token1)
	return nil
}
