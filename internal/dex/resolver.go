package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/a6b0x/chain-pipe/internal/chain"
	"github.com/a6b0x/chain-pipe/internal/domain"
)

// Resolver fetches static ERC20 metadata from the chain. It is stateless
// and holds no cache; caching is the enricher's responsibility.
type Resolver struct {
	caller chain.Caller
}

func NewResolver(caller chain.Caller) (*Resolver, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain caller is required")
	}
	if _, err := erc20ABIInstance(); err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if _, err := PairABI(); err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	return &Resolver{caller: caller}, nil
}

// Resolve reads decimals, symbol and total supply. The three calls are
// independent pure reads and run concurrently; any failure fails the
// whole resolution and the caller decides the retry policy.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (domain.Token, error) {
	erc20, err := erc20ABIInstance()
	if err != nil {
		return domain.Token{}, err
	}

	var (
		mu          sync.Mutex
		decimals    uint8
		symbol      string
		totalSupply *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := r.call(gctx, token, erc20, "decimals")
		if err != nil {
			return err
		}
		d, err := asUint8(values[0])
		if err != nil {
			return fmt.Errorf("decimals: %w", err)
		}
		mu.Lock()
		decimals = d
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		values, err := r.call(gctx, token, erc20, "symbol")
		if err != nil {
			return err
		}
		s, err := asSymbol(values[0])
		if err != nil {
			return fmt.Errorf("symbol: %w", err)
		}
		mu.Lock()
		symbol = s
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		values, err := r.call(gctx, token, erc20, "totalSupply")
		if err != nil {
			return err
		}
		supply, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("total supply: %w", err)
		}
		mu.Lock()
		totalSupply = supply
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Token{}, fmt.Errorf("resolve token %s: %w", domain.CanonicalAddress(token), err)
	}

	return domain.Token{
		Address:     token,
		Decimals:    decimals,
		Symbol:      symbol,
		TotalSupply: domain.NewBigInt(totalSupply),
	}, nil
}

// PairTokens reads token0()/token1() from the pool contract. Used by the
// bootstrap path for pairs that predate the event-stream window.
func (r *Resolver) PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	pABI, err := PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	values, err := r.call(ctx, pair, pABI, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.call(ctx, pair, pABI, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}

	return token0, token1, nil
}

func (r *Resolver) call(ctx context.Context, to common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return values, nil
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func asSymbol(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), nil
	default:
		return "", fmt.Errorf("unsupported symbol type %T", value)
	}
}
