package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type memEntry struct {
	expireAt int64 // unix nano
}

// MemoryDedupe is the single-instance deduper for dev runs.
// ttl is how long a seen id is remembered; janitorEvery controls the
// expired-key sweep, 0 disables it.
type MemoryDedupe struct {
	log     logger.Logger
	ttl     time.Duration
	mu      sync.RWMutex
	items   map[string]memEntry
	stopCh  chan struct{}
	stopped bool
}

func NewInMemoryDedupe(log logger.Logger, ttl, janitorEvery time.Duration) *MemoryDedupe {
	m := &MemoryDedupe{
		log:    log,
		ttl:    ttl,
		items:  make(map[string]memEntry, 1024),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}

	return m
}

func (m *MemoryDedupe) IsDuplicate(_ context.Context, id string) (bool, error) {
	now := time.Now().UnixNano()

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.items[id]
	return ok && e.expireAt > now, nil
}

func (m *MemoryDedupe) MarkSeen(_ context.Context, id string) error {
	exp := time.Now().UnixNano() + m.ttl.Nanoseconds()

	m.mu.Lock()
	m.items[id] = memEntry{expireAt: exp}
	m.mu.Unlock()

	m.log.Debugf("Marked seen id=%s", id)
	return nil
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			m.mu.Lock()
			for k, e := range m.items {
				if e.expireAt <= now {
					delete(m.items, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor (if running).
func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
