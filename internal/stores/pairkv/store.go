package pairkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/domain"
)

// ErrPairNotFound means the pair has not been enriched yet. A Sync event
// hitting this is retryable: the enricher catches up and redelivery
// re-reads the bucket.
var ErrPairNotFound = errors.New("pair not found in kv store")

// Store is the pair repository over the JetStream KV bucket. Keys are
// canonical lower-case hex pair addresses, values JSON pair records. Puts
// are unconditional revisioned overwrites (last writer wins); the value is
// deterministic per pair, so duplicate enrichments are idempotent.
type Store struct {
	kv  nats.KeyValue
	log logger.Logger
}

func New(log logger.Logger, kv nats.KeyValue) (*Store, error) {
	if kv == nil {
		return nil, errors.New("kv bucket is required")
	}
	return &Store{kv: kv, log: log}, nil
}

func (s *Store) Put(_ context.Context, pair domain.Pair) error {
	key := domain.CanonicalAddress(pair.Address)
	value, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode pair %s: %w", key, err)
	}

	rev, err := s.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}

	s.log.Debugf("Stored pair %s at revision %d", key, rev)
	return nil
}

func (s *Store) Get(_ context.Context, pair common.Address) (domain.Pair, error) {
	key := domain.CanonicalAddress(pair)
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.Pair{}, fmt.Errorf("pair %s: %w", key, ErrPairNotFound)
		}
		return domain.Pair{}, fmt.Errorf("kv get %s: %w", key, err)
	}

	p, err := domain.DecodePair(entry.Value())
	if err != nil {
		return domain.Pair{}, fmt.Errorf("pair %s at revision %d: %w", key, entry.Revision(), err)
	}
	return p, nil
}

// Keys lists all stored pair addresses, used by the source's sync mode to
// bootstrap its log filter.
func (s *Store) Keys(_ context.Context) ([]common.Address, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}

	addrs := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		if !common.IsHexAddress(key) {
			s.log.Warnf("Skipping non-address kv key %q", key)
			continue
		}
		addrs = append(addrs, common.HexToAddress(key))
	}
	return addrs, nil
}
