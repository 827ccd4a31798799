package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/config"
	rdb "github.com/a6b0x/chain-pipe/internal/stores/redis"
)

// RedisDedupe is the cluster deduper, keys prefixed and expired by TTL so
// the set does not grow without bound.
type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "chainpipe:dedupe:"
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
	}, nil
}

func (d *RedisDedupe) IsDuplicate(ctx context.Context, id string) (bool, error) {
	err := d.rdb.Get(ctx, d.prefix+id).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	return false, fmt.Errorf("redis GET error=%w", err)
}

func (d *RedisDedupe) MarkSeen(ctx context.Context, id string) error {
	if err := d.rdb.Set(ctx, d.prefix+id, 1, d.ttl).Err(); err != nil {
		d.log.Errorf("Redis SET error=%v", err)
		return fmt.Errorf("redis SET error=%w", err)
	}
	return nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}
