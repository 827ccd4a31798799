package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Caller is the read-only surface components depend on, so they stay
// testable with a stub chain reader.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// tsCacheSize bounds the timestamp cache. Live logs cluster on recent
// blocks, so a small window keeps the hit rate high.
const tsCacheSize = 1024

// Client wraps go-ethereum RPC. One shared handle is injected into each
// component at construction; it is safe for concurrent use.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	ts *tsCache
}

// Dial connects to the node. A ws:// URL is required for log subscriptions;
// http(s) is enough for pure reads.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		ts:        newTSCache(tsCacheSize),
	}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// SubscribeLogs opens a live log subscription for the given query.
func (c *Client) SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.ethClient.SubscribeFilterLogs(ctx, query, ch)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache so
// many logs of the same block cost one header fetch.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.ts.get(number); ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	c.ts.put(number, header.Time)
	return header.Time, nil
}

// tsCache is a bounded block-number to timestamp map with FIFO eviction,
// so a long-running watcher does not accumulate one entry per block forever.
type tsCache struct {
	mu    sync.RWMutex
	size  int
	items map[uint64]uint64
	order []uint64
}

func newTSCache(size int) *tsCache {
	return &tsCache{size: size, items: make(map[uint64]uint64, size)}
}

func (c *tsCache) get(number uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.items[number]
	return ts, ok
}

func (c *tsCache) put(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[number]; ok {
		return
	}
	c.items[number] = ts
	c.order = append(c.order, number)
	if len(c.order) > c.size {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}
