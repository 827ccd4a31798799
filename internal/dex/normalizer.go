package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/a6b0x/chain-pipe/internal/domain"
)

// ErrUnknownEvent marks a log whose topic0 is neither PairCreated nor Sync.
// Decode failures are deterministic for the same bytes, so callers drop
// the log instead of retrying.
var ErrUnknownEvent = errors.New("unknown event signature")

// Normalizer turns raw chain logs into the canonical event types. The
// field sets are stable and independent of the client's log representation.
type Normalizer struct {
	factoryABI abi.ABI
	pairABI    abi.ABI
}

func NewNormalizer() (*Normalizer, error) {
	fABI, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	pABI, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	return &Normalizer{factoryABI: fABI, pairABI: pABI}, nil
}

// PairCreatedTopic is topic0 of the factory PairCreated event.
func (n *Normalizer) PairCreatedTopic() common.Hash {
	return n.factoryABI.Events["PairCreated"].ID
}

// SyncTopic is topic0 of the pair Sync event.
func (n *Normalizer) SyncTopic() common.Hash {
	return n.pairABI.Events["Sync"].ID
}

// NormalizePairCreated decodes a factory PairCreated log. blockTimestamp
// comes from the log's block header; pass zero for a log not yet included
// in a block.
func (n *Normalizer) NormalizePairCreated(log types.Log, blockTimestamp uint64) (domain.PairCreatedEvent, error) {
	event := n.factoryABI.Events["PairCreated"]
	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return domain.PairCreatedEvent{}, ErrUnknownEvent
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return domain.PairCreatedEvent{}, fmt.Errorf("parse pair-created topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return domain.PairCreatedEvent{}, fmt.Errorf("unpack pair-created data: %w", err)
	}
	if len(values) != 2 {
		return domain.PairCreatedEvent{}, fmt.Errorf("unexpected pair-created values: %d", len(values))
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return domain.PairCreatedEvent{}, fmt.Errorf("unexpected pair address type %T", values[0])
	}

	return domain.PairCreatedEvent{
		Pair:            pair,
		Token0:          indexed.Token0,
		Token1:          indexed.Token1,
		TransactionHash: log.TxHash,
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  blockTimestamp,
	}, nil
}

// NormalizeSync decodes a pair Sync log. The emitting pool is the log
// address itself.
func (n *Normalizer) NormalizeSync(log types.Log, blockTimestamp uint64) (domain.SyncEvent, error) {
	event := n.pairABI.Events["Sync"]
	if len(log.Topics) != 1 || log.Topics[0] != event.ID {
		return domain.SyncEvent{}, ErrUnknownEvent
	}

	values, err := event.Inputs.Unpack(log.Data)
	if err != nil {
		return domain.SyncEvent{}, fmt.Errorf("unpack sync data: %w", err)
	}
	if len(values) != 2 {
		return domain.SyncEvent{}, fmt.Errorf("unexpected sync values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return domain.SyncEvent{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return domain.SyncEvent{}, fmt.Errorf("reserve1: %w", err)
	}

	return domain.SyncEvent{
		Pair:            log.Address,
		Reserve0:        domain.NewBigInt(reserve0),
		Reserve1:        domain.NewBigInt(reserve1),
		TransactionHash: log.TxHash,
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  blockTimestamp,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}
