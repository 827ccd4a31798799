package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

// --- tests ---

// Unmarked id -> not duplicate; after MarkSeen -> duplicate.
func TestMemoryDedupe_MarkThenDuplicate(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	m := NewInMemoryDedupe(lg, 200*time.Millisecond, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "0xtx1:0xpair1"

	dup, err := m.IsDuplicate(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Fatalf("expected unmarked id to be non-duplicate")
	}

	if err := m.MarkSeen(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup, err = m.IsDuplicate(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatalf("expected marked id to be duplicate")
	}
}

// An id only becomes a duplicate via MarkSeen; IsDuplicate alone must not
// record anything (the write happens after the durable insert).
func TestMemoryDedupe_CheckDoesNotRecord(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	m := NewInMemoryDedupe(lg, time.Minute, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "0xtx2:0xpair2"

	for i := 0; i < 3; i++ {
		dup, err := m.IsDuplicate(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dup {
			t.Fatalf("IsDuplicate must not record the id (iteration %d)", i)
		}
	}
}

// After TTL the id expires and counts as unseen again.
func TestMemoryDedupe_Expiration(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	ttl := 50 * time.Millisecond
	m := NewInMemoryDedupe(lg, ttl, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "0xtx3:0xpair3"

	if err := m.MarkSeen(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(ttl + 20*time.Millisecond)

	dup, _ := m.IsDuplicate(ctx, id)
	if dup {
		t.Fatalf("after TTL expired, id must be non-duplicate again")
	}
}

// check clear map
func TestMemoryDedupe_JanitorCleansUp(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	ttl := 20 * time.Millisecond
	janitorEvery := 15 * time.Millisecond

	m := NewInMemoryDedupe(lg, ttl, janitorEvery)
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = m.MarkSeen(ctx, "k-"+time.Now().String())
	}

	time.Sleep(ttl + 2*janitorEvery)

	m.mu.RLock()
	size := len(m.items)
	m.mu.RUnlock()

	if size != 0 {
		t.Fatalf("expected janitor to clean expired items, but map size=%d", size)
	}
}

func TestMemoryDedupe_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	m := NewInMemoryDedupe(lg, 50*time.Millisecond, 10*time.Millisecond)

	m.Close()
	m.Close()
}

// Concurrency: no race or panic with mixed checks and marks.
func TestMemoryDedupe_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	lg := newTestLogger()
	m := NewInMemoryDedupe(lg, 500*time.Millisecond, 0)
	defer m.Close()

	ctx := context.Background()
	const id = "same-id"
	const workers = 64

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				if err := m.MarkSeen(ctx, id); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if _, err := m.IsDuplicate(ctx, id); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	dup, err := m.IsDuplicate(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatalf("id must be duplicate after MarkSeen calls")
	}
}
