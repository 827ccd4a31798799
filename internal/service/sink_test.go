package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/dedupe"
	"github.com/a6b0x/chain-pipe/internal/domain"
)

// --- helpers ---

type memWriter struct {
	mu      sync.Mutex
	rows    []domain.PriceTick
	failFor int // fail this many inserts before succeeding
	err     error
}

func (w *memWriter) Insert(_ context.Context, ticks []domain.PriceTick) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failFor > 0 {
		w.failFor--
		return errors.New("clickhouse: connection reset")
	}
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, ticks...)
	return nil
}

func (w *memWriter) Health(_ context.Context) error { return nil }

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func tickPayload(t *testing.T, txHash string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.PriceTick{
		PairAddress:     domain.CanonicalAddress(pairAddr),
		Token0Address:   domain.CanonicalAddress(token0Addr),
		Token0Reserve:   "2000000",
		Token0Symbol:    "USDC",
		Token1Address:   domain.CanonicalAddress(token1Addr),
		Token1Reserve:   "4000000",
		Token1Symbol:    "USDT",
		Token0Token1:    2.0,
		Token1Token0:    0.5,
		TransactionHash: txHash,
		BlockNumber:     10_000_900,
		BlockTimestamp:  1_700_000_111,
	})
	require.NoError(t, err)
	return data
}

// --- tests ---

func TestSink_HandleMessage(t *testing.T) {
	t.Parallel()

	writer := &memWriter{}
	s, err := NewSink(newTestLogger(), writer, nil)
	require.NoError(t, err)

	err = s.HandleMessage(context.Background(), tickPayload(t, "0xaa"))
	require.NoError(t, err)

	require.Equal(t, 1, writer.count())
	assert.Equal(t, "USDC", writer.rows[0].Token0Symbol)
}

func TestSink_DecodeErrorIsPermanent(t *testing.T) {
	t.Parallel()

	s, err := NewSink(newTestLogger(), &memWriter{}, nil)
	require.NoError(t, err)

	err = s.HandleMessage(context.Background(), []byte(`{`))
	require.Error(t, err)

	var perm *consumer.PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestSink_InsertErrorIsTransient(t *testing.T) {
	t.Parallel()

	writer := &memWriter{err: errors.New("clickhouse: table is read-only")}
	s, err := NewSink(newTestLogger(), writer, nil)
	require.NoError(t, err)

	err = s.HandleMessage(context.Background(), tickPayload(t, "0xaa"))
	require.Error(t, err)

	var perm *consumer.PermanentError
	assert.False(t, errors.As(err, &perm))
}

// Without a deduper a redelivered tick writes a duplicate row. The store
// tolerates that; at-least-once delivery makes it the baseline contract.
func TestSink_NoDeduperWritesDuplicates(t *testing.T) {
	t.Parallel()

	writer := &memWriter{}
	s, err := NewSink(newTestLogger(), writer, nil)
	require.NoError(t, err)

	payload := tickPayload(t, "0xaa")
	require.NoError(t, s.HandleMessage(context.Background(), payload))
	require.NoError(t, s.HandleMessage(context.Background(), payload))

	assert.Equal(t, 2, writer.count())
}

func TestSink_DeduperSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	deduper := dedupe.NewInMemoryDedupe(lg, time.Minute, 0)
	defer deduper.Close()

	writer := &memWriter{}
	s, err := NewSink(lg, writer, deduper)
	require.NoError(t, err)

	payload := tickPayload(t, "0xaa")
	require.NoError(t, s.HandleMessage(context.Background(), payload))
	require.NoError(t, s.HandleMessage(context.Background(), payload))

	assert.Equal(t, 1, writer.count())

	// A different tx on the same pair is a distinct tick.
	require.NoError(t, s.HandleMessage(context.Background(), tickPayload(t, "0xbb")))
	assert.Equal(t, 2, writer.count())
}

// An insert failure must not mark the tick seen, or the redelivery would be
// swallowed and the tick lost.
func TestSink_FailedInsertNotMarkedSeen(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	deduper := dedupe.NewInMemoryDedupe(lg, time.Minute, 0)
	defer deduper.Close()

	writer := &memWriter{failFor: 1}
	s, err := NewSink(lg, writer, deduper)
	require.NoError(t, err)

	payload := tickPayload(t, "0xaa")
	require.Error(t, s.HandleMessage(context.Background(), payload))
	assert.Zero(t, writer.count())

	// Redelivery succeeds and writes the row.
	require.NoError(t, s.HandleMessage(context.Background(), payload))
	assert.Equal(t, 1, writer.count())
}
