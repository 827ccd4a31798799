package price

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/a6b0x/chain-pipe/internal/domain"
)

// 18-decimal fixed-point scale. The ratio stays an integer until the final
// float conversion.
var scalingFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Compute derives both exchange rates from a Sync event and its enriched
// pair. The core ratio is computed in big.Int so reserves up to 112 bits
// and the 10^18 scale never truncate; the returned f64 fields are the
// first lossy conversion in the pipeline.
//
// A zero reserve0 is a legitimate final state (an empty pool has no
// price): Compute returns (nil, nil) and the caller acknowledges.
func Compute(ev domain.SyncEvent, pair domain.Pair) (*domain.PriceTick, error) {
	if ev.Reserve0 == nil || ev.Reserve1 == nil {
		return nil, fmt.Errorf("sync event for %s has nil reserves", domain.CanonicalAddress(ev.Pair))
	}

	reserve0 := &ev.Reserve0.Int
	reserve1 := &ev.Reserve1.Int

	if reserve0.Sign() == 0 {
		return nil, nil
	}

	decimalDiff := int64(pair.Token0.Decimals) - int64(pair.Token1.Decimals)
	adjustment := new(big.Int).Exp(big.NewInt(10), big.NewInt(absInt64(decimalDiff)), nil)

	num := new(big.Int).Mul(reserve1, scalingFactor)
	den := reserve0
	if decimalDiff >= 0 {
		num.Mul(num, adjustment)
	} else {
		den = new(big.Int).Mul(reserve0, adjustment)
	}
	ratioScaled := new(big.Int).Quo(num, den)

	f, err := strconv.ParseFloat(ratioScaled.String(), 64)
	if err != nil {
		return nil, fmt.Errorf("parse scaled ratio %s: %w", ratioScaled, err)
	}
	token0Token1 := f / 1e18

	token1Token0 := 0.0
	if token0Token1 != 0 {
		token1Token0 = 1 / token0Token1
	}

	return &domain.PriceTick{
		PairAddress: domain.CanonicalAddress(ev.Pair),

		Token0Address: domain.CanonicalAddress(pair.Token0.Address),
		Token0Reserve: reserve0.String(),
		Token0Symbol:  pair.Token0.Symbol,

		Token1Address: domain.CanonicalAddress(pair.Token1.Address),
		Token1Reserve: reserve1.String(),
		Token1Symbol:  pair.Token1.Symbol,

		Token0Token1: token0Token1,
		Token1Token0: token1Token0,

		TransactionHash: ev.TransactionHash.Hex(),
		BlockNumber:     ev.BlockNumber,
		BlockTimestamp:  ev.BlockTimestamp,
	}, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
