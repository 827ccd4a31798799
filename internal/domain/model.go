package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// PairCreated event from the factory, one per pool creation. Canonical
// form of the raw log; never mutated after decode.
type PairCreatedEvent struct {
	Pair            common.Address `json:"pair"`
	Token0          common.Address `json:"token0"`
	Token1          common.Address `json:"token1"`
	TransactionHash common.Hash    `json:"transaction_hash"`
	BlockNumber     uint64         `json:"block_number"`
	BlockTimestamp  uint64         `json:"block_timestamp"`
}

// Sync event from a pool, emitted on every reserve change. Reserves are
// uint112 on chain and carried as big integers at full precision.
type SyncEvent struct {
	Pair            common.Address `json:"pair"`
	Reserve0        *BigInt        `json:"reserve0"`
	Reserve1        *BigInt        `json:"reserve1"`
	TransactionHash common.Hash    `json:"transaction_hash"`
	BlockNumber     uint64         `json:"block_number"`
	BlockTimestamp  uint64         `json:"block_timestamp"`
}

// Static ERC20 metadata; decimals and symbol do not change post-deployment
// so a Token is treated as immutable for the process lifetime.
type Token struct {
	Address     common.Address `json:"address"`
	Decimals    uint8          `json:"decimals"`
	Symbol      string         `json:"symbol"`
	TotalSupply *BigInt        `json:"total_supply"`
}

// Pair is the enriched pool record, the single source other stages use to
// interpret SyncEvent reserves. Stored in the KV bucket keyed by the
// pair's canonical address.
type Pair struct {
	Address common.Address `json:"address"`
	Token0  Token          `json:"token0"`
	Token1  Token          `json:"token1"`
}

// PriceTick is the output record, one per priced Sync event. The two rate
// fields are the only lossy (f64) values in the pipeline; reserves stay
// decimal strings.
type PriceTick struct {
	PairAddress string `json:"pair_address"`

	Token0Address string `json:"token0_address"`
	Token0Reserve string `json:"token0_reserve"`
	Token0Symbol  string `json:"token0_symbol"`

	Token1Address string `json:"token1_address"`
	Token1Reserve string `json:"token1_reserve"`
	Token1Symbol  string `json:"token1_symbol"`

	Token0Token1 float64 `json:"token0_token1"`
	Token1Token0 float64 `json:"token1_token0"`

	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	BlockTimestamp  uint64 `json:"block_timestamp"`
}

// TickID is the sink dedupe key: one tick per (tx, pair).
func (t *PriceTick) TickID() string {
	return t.TransactionHash + ":" + t.PairAddress
}
