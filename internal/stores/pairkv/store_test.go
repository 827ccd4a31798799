package pairkv

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/domain"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func testBucket(t *testing.T) nats.KeyValue {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream()
	require.NoError(t, err)

	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{Bucket: "pairs"})
	require.NoError(t, err)
	return kv
}

func samplePair(addr common.Address) domain.Pair {
	return domain.Pair{
		Address: addr,
		Token0: domain.Token{
			Address:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			Decimals:    6,
			Symbol:      "USDC",
			TotalSupply: domain.NewBigIntFromUint64(1_000_000),
		},
		Token1: domain.Token{
			Address:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			Decimals:    18,
			Symbol:      "WETH",
			TotalSupply: domain.NewBigIntFromUint64(2_000_000),
		},
	}
}

// --- tests ---

func TestStore_PutGet(t *testing.T) {
	store, err := New(newTestLogger(), testBucket(t))
	require.NoError(t, err)

	ctx := context.Background()
	addr := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	require.NoError(t, store.Put(ctx, samplePair(addr)))

	got, err := store.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Address)
	assert.Equal(t, "USDC", got.Token0.Symbol)
	assert.Equal(t, uint8(18), got.Token1.Decimals)
	assert.Equal(t, "2000000", got.Token1.TotalSupply.String())
}

// The key is the canonical lower-case address; lookups with any casing of
// the same address must hit the same record.
func TestStore_GetIsCaseInsensitive(t *testing.T) {
	store, err := New(newTestLogger(), testBucket(t))
	require.NoError(t, err)

	ctx := context.Background()
	addr := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	require.NoError(t, store.Put(ctx, samplePair(addr)))

	got, err := store.Get(ctx, common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc"))
	require.NoError(t, err)
	assert.Equal(t, addr, got.Address)
}

func TestStore_GetMissing(t *testing.T) {
	store, err := New(newTestLogger(), testBucket(t))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrPairNotFound)
}

// Re-putting the same pair overwrites in place, no duplicate key.
func TestStore_PutIsIdempotent(t *testing.T) {
	store, err := New(newTestLogger(), testBucket(t))
	require.NoError(t, err)

	ctx := context.Background()
	addr := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	pair := samplePair(addr)

	require.NoError(t, store.Put(ctx, pair))
	require.NoError(t, store.Put(ctx, pair))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, addr, keys[0])
}

func TestStore_Keys(t *testing.T) {
	store, err := New(newTestLogger(), testBucket(t))
	require.NoError(t, err)

	ctx := context.Background()

	// Empty bucket is not an error.
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	addrs := []common.Address{
		common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"),
	}
	for _, addr := range addrs {
		require.NoError(t, store.Put(ctx, samplePair(addr)))
	}

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, addrs, keys)
}

func TestNew_NilBucket(t *testing.T) {
	t.Parallel()

	_, err := New(newTestLogger(), nil)
	require.Error(t, err)
}
