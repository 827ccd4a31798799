package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/domain"
	"github.com/a6b0x/chain-pipe/internal/stores/pairkv"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

var (
	pairAddr   = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	token0Addr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	token1Addr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// stubResolver serves token metadata from a fixed map.
type stubResolver struct {
	tokens     map[common.Address]domain.Token
	pairTokens map[common.Address][2]common.Address
	err        error
}

func (s *stubResolver) Resolve(_ context.Context, token common.Address) (domain.Token, error) {
	if s.err != nil {
		return domain.Token{}, s.err
	}
	t, ok := s.tokens[token]
	if !ok {
		return domain.Token{}, errors.New("unknown token")
	}
	return t, nil
}

func (s *stubResolver) PairTokens(_ context.Context, pair common.Address) (common.Address, common.Address, error) {
	if s.err != nil {
		return common.Address{}, common.Address{}, s.err
	}
	tokens, ok := s.pairTokens[pair]
	if !ok {
		return common.Address{}, common.Address{}, errors.New("unknown pair")
	}
	return tokens[0], tokens[1], nil
}

// delayedResolver injects a per-token delay in front of another resolver.
type delayedResolver struct {
	TokenResolver
	delays map[common.Address]time.Duration
}

func (d *delayedResolver) Resolve(ctx context.Context, token common.Address) (domain.Token, error) {
	time.Sleep(d.delays[token])
	return d.TokenResolver.Resolve(ctx, token)
}

// memPairStore records puts; also serves gets for the injector tests.
type memPairStore struct {
	mu    sync.Mutex
	pairs map[string]domain.Pair
	puts  int
	err   error
}

func newMemPairStore() *memPairStore {
	return &memPairStore{pairs: make(map[string]domain.Pair)}
}

func (m *memPairStore) Put(_ context.Context, pair domain.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pairs[domain.CanonicalAddress(pair.Address)] = pair
	m.puts++
	return nil
}

func (m *memPairStore) Get(_ context.Context, pair common.Address) (domain.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[domain.CanonicalAddress(pair)]
	if !ok {
		return domain.Pair{}, pairkv.ErrPairNotFound
	}
	return p, nil
}

func usdcWethResolver() *stubResolver {
	return &stubResolver{
		tokens: map[common.Address]domain.Token{
			token0Addr: {Address: token0Addr, Decimals: 6, Symbol: "USDC", TotalSupply: domain.NewBigIntFromUint64(1_000_000)},
			token1Addr: {Address: token1Addr, Decimals: 18, Symbol: "WETH", TotalSupply: domain.NewBigIntFromUint64(2_000_000)},
		},
		pairTokens: map[common.Address][2]common.Address{
			pairAddr: {token0Addr, token1Addr},
		},
	}
}

func pairCreatedPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(domain.PairCreatedEvent{
		Pair:            pairAddr,
		Token0:          token0Addr,
		Token1:          token1Addr,
		TransactionHash: common.HexToHash("0x11"),
		BlockNumber:     10_000_835,
		BlockTimestamp:  1_700_000_000,
	})
	require.NoError(t, err)
	return data
}

// --- tests ---

func TestEnricher_HandleMessage(t *testing.T) {
	t.Parallel()

	store := newMemPairStore()
	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), store)
	require.NoError(t, err)

	err = e.HandleMessage(context.Background(), pairCreatedPayload(t))
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), pairAddr)
	require.NoError(t, err)
	assert.Equal(t, pairAddr, stored.Address)
	assert.Equal(t, "USDC", stored.Token0.Symbol)
	assert.Equal(t, uint8(6), stored.Token0.Decimals)
	assert.Equal(t, "WETH", stored.Token1.Symbol)
	assert.Equal(t, uint8(18), stored.Token1.Decimals)
}

// Redelivered pair-created events rewrite the same record.
func TestEnricher_Idempotent(t *testing.T) {
	t.Parallel()

	store := newMemPairStore()
	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), store)
	require.NoError(t, err)

	payload := pairCreatedPayload(t)
	require.NoError(t, e.HandleMessage(context.Background(), payload))
	first, err := store.Get(context.Background(), pairAddr)
	require.NoError(t, err)

	require.NoError(t, e.HandleMessage(context.Background(), payload))
	second, err := store.Get(context.Background(), pairAddr)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.puts)
}

// The two token resolutions fan out and join: enriching a pair takes
// about the slower resolution, not the sum of both.
func TestEnricher_TokensResolveConcurrently(t *testing.T) {
	t.Parallel()

	resolver := &delayedResolver{
		TokenResolver: usdcWethResolver(),
		delays: map[common.Address]time.Duration{
			token0Addr: 100 * time.Millisecond,
			token1Addr: 300 * time.Millisecond,
		},
	}
	store := newMemPairStore()
	e, err := NewEnricher(newTestLogger(), resolver, store)
	require.NoError(t, err)

	start := time.Now()
	err = e.HandleMessage(context.Background(), pairCreatedPayload(t))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 380*time.Millisecond,
		"100ms and 300ms resolutions must not run sequentially")
	assert.Equal(t, 1, store.puts)
}

// Undecodable payloads must not be retried.
func TestEnricher_DecodeErrorIsPermanent(t *testing.T) {
	t.Parallel()

	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), newMemPairStore())
	require.NoError(t, err)

	err = e.HandleMessage(context.Background(), []byte(`{"garbage":`))
	require.Error(t, err)

	var perm *consumer.PermanentError
	assert.ErrorAs(t, err, &perm)
}

// Chain failures are transient: the error surfaces unwrapped so the
// coordinator leaves the message for redelivery.
func TestEnricher_ResolveErrorIsTransient(t *testing.T) {
	t.Parallel()

	resolver := usdcWethResolver()
	resolver.err = errors.New("rpc: timeout")
	e, err := NewEnricher(newTestLogger(), resolver, newMemPairStore())
	require.NoError(t, err)

	err = e.HandleMessage(context.Background(), pairCreatedPayload(t))
	require.Error(t, err)

	var perm *consumer.PermanentError
	assert.False(t, errors.As(err, &perm))
}

func TestEnricher_StoreErrorIsTransient(t *testing.T) {
	t.Parallel()

	store := newMemPairStore()
	store.err = errors.New("kv: connection lost")
	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), store)
	require.NoError(t, err)

	err = e.HandleMessage(context.Background(), pairCreatedPayload(t))
	require.Error(t, err)

	var perm *consumer.PermanentError
	assert.False(t, errors.As(err, &perm))
}

// Bootstrap reads the token linkage from the pool contract itself.
func TestEnricher_Bootstrap(t *testing.T) {
	t.Parallel()

	store := newMemPairStore()
	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), store)
	require.NoError(t, err)

	err = e.Bootstrap(context.Background(), []common.Address{pairAddr})
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), pairAddr)
	require.NoError(t, err)
	assert.Equal(t, "USDC", stored.Token0.Symbol)
	assert.Equal(t, "WETH", stored.Token1.Symbol)
}

func TestEnricher_BootstrapUnknownPair(t *testing.T) {
	t.Parallel()

	e, err := NewEnricher(newTestLogger(), usdcWethResolver(), newMemPairStore())
	require.NoError(t, err)

	err = e.Bootstrap(context.Background(), []common.Address{token0Addr})
	require.Error(t, err)
}
