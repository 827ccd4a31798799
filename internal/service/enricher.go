package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"

	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/domain"
)

// TokenResolver resolves token metadata and pool token linkage from the
// chain. Satisfied by dex.Resolver; stubbed in tests.
type TokenResolver interface {
	Resolve(ctx context.Context, token common.Address) (domain.Token, error)
	PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error)
}

// PairStore is the write side of the pair cache.
type PairStore interface {
	Put(ctx context.Context, pair domain.Pair) error
}

// Enricher resolves both tokens of a created pair and stores the combined
// record. It is the only writer of the pair bucket.
type Enricher struct {
	log      logger.Logger
	resolver TokenResolver
	pairs    PairStore
}

func NewEnricher(log logger.Logger, resolver TokenResolver, pairs PairStore) (*Enricher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("token resolver is required")
	}
	if pairs == nil {
		return nil, fmt.Errorf("pair store is required")
	}
	return &Enricher{log: log, resolver: resolver, pairs: pairs}, nil
}

// HandleMessage is the pair-created consumer handler. Decode failures are
// permanent; resolution and store failures are transient and surface as
// non-acknowledgment.
func (e *Enricher) HandleMessage(ctx context.Context, data []byte) error {
	ev, err := domain.DecodePairCreatedEvent(data)
	if err != nil {
		return consumer.Permanent(err)
	}
	return e.Enrich(ctx, ev)
}

// Enrich resolves token0 and token1 concurrently (the unit of work joins
// on the slower of the two) and stores the pair under its canonical
// address. Reprocessing the same event writes the same value, so
// duplicate deliveries are safe.
func (e *Enricher) Enrich(ctx context.Context, ev domain.PairCreatedEvent) error {
	pair, err := e.resolvePair(ctx, ev.Pair, ev.Token0, ev.Token1)
	if err != nil {
		return err
	}

	if err := e.pairs.Put(ctx, pair); err != nil {
		return err
	}

	e.log.Infof("Enriched pair %s (%s/%s)",
		domain.CanonicalAddress(ev.Pair), pair.Token0.Symbol, pair.Token1.Symbol)
	return nil
}

// Bootstrap pre-enriches statically configured pairs that predate the
// event stream, reading the token linkage from the pool contract itself.
func (e *Enricher) Bootstrap(ctx context.Context, pairs []common.Address) error {
	for _, addr := range pairs {
		token0, token1, err := e.resolver.PairTokens(ctx, addr)
		if err != nil {
			return fmt.Errorf("bootstrap pair %s: %w", domain.CanonicalAddress(addr), err)
		}

		pair, err := e.resolvePair(ctx, addr, token0, token1)
		if err != nil {
			return fmt.Errorf("bootstrap pair %s: %w", domain.CanonicalAddress(addr), err)
		}

		if err := e.pairs.Put(ctx, pair); err != nil {
			return fmt.Errorf("bootstrap pair %s: %w", domain.CanonicalAddress(addr), err)
		}
		e.log.Infof("Bootstrapped pair %s (%s/%s)",
			domain.CanonicalAddress(addr), pair.Token0.Symbol, pair.Token1.Symbol)
	}
	return nil
}

func (e *Enricher) resolvePair(ctx context.Context, pair, token0, token1 common.Address) (domain.Pair, error) {
	var t0, t1 domain.Token

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		t0, err = e.resolver.Resolve(gctx, token0)
		return err
	})
	g.Go(func() error {
		var err error
		t1, err = e.resolver.Resolve(gctx, token1)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Pair{}, fmt.Errorf("resolve tokens of pair %s: %w", domain.CanonicalAddress(pair), err)
	}

	return domain.Pair{Address: pair, Token0: t0, Token1: t1}, nil
}
