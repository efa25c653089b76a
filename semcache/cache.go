package semcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by Get when no layer has the key.
var ErrMiss = errors.New("semcache: miss")

// Config configures the two-level cache.
type Config struct {
	LocalCapacity int
	LocalTTL      time.Duration
	RedisTTL      time.Duration
	EnableLocal   bool
	EnableRedis   bool
}

func DefaultConfig() Config {
	return Config{
		LocalCapacity: 2000,
		LocalTTL:      5 * time.Minute,
		RedisTTL:      1 * time.Hour,
		EnableLocal:   true,
		EnableRedis:   true,
	}
}

// Cache is the semantic response cache: local LRU backed by Redis, with
// singleflight coalescing so that concurrent Fill calls for the same key
// invoke the filler function at most once.
type Cache struct {
	cfg    Config
	local  *lru
	redis  *redis.Client
	group  singleflight.Group
	logger *zap.Logger
}

func New(cfg Config, rdb *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	var local *lru
	if cfg.EnableLocal {
		local = newLRU(cfg.LocalCapacity, cfg.LocalTTL)
	}
	return &Cache{cfg: cfg, local: local, redis: rdb, logger: logger}
}

func (c *Cache) redisKey(id string) string { return "router:semcache:" + id }

// Get checks the local layer, then Redis, backfilling the local layer on a
// Redis hit. It never invokes a filler and never blocks on singleflight.
func (c *Cache) Get(ctx context.Context, id string) (Entry, error) {
	if c.cfg.EnableLocal && c.local != nil {
		if e, ok := c.local.Get(id); ok {
			return e, nil
		}
	}
	if c.cfg.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, c.redisKey(id)).Bytes()
		if err == nil {
			var e Entry
			if jerr := json.Unmarshal(data, &e); jerr == nil {
				if c.cfg.EnableLocal && c.local != nil {
					c.local.Set(id, e)
				}
				return e, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("semcache redis get failed", zap.Error(err))
		}
	}
	return Entry{}, ErrMiss
}

// Set writes through both layers.
func (c *Cache) Set(ctx context.Context, id string, e Entry) error {
	e.CreatedAt = time.Now()
	e.ExpiresAt = e.CreatedAt.Add(c.cfg.RedisTTL)

	if c.cfg.EnableLocal && c.local != nil {
		c.local.Set(id, e)
	}
	if c.cfg.EnableRedis && c.redis != nil {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := c.redis.Set(ctx, c.redisKey(id), data, c.cfg.RedisTTL).Err(); err != nil {
			c.logger.Warn("semcache redis set failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// Fill performs a Get, and on miss coalesces concurrent callers for the
// same id through a single invocation of produce, writing the result
// through both layers before returning it to every waiter. This is the
// at-most-one-fill guarantee: only the caller that actually executes
// produce incurs the vendor call; every other concurrent caller for the
// same id observes its result without re-invoking produce.
func (c *Cache) Fill(ctx context.Context, id string, produce func(context.Context) (Entry, error)) (Entry, bool, error) {
	if e, err := c.Get(ctx, id); err == nil {
		return e, true, nil
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		e, perr := produce(ctx)
		if perr != nil {
			return Entry{}, perr
		}
		if serr := c.Set(ctx, id, e); serr != nil {
			c.logger.Warn("semcache write-through failed", zap.Error(serr))
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Invalidate clears the local layer entirely; used on rules/model changes
// where cached responses may no longer reflect current routing.
func (c *Cache) Invalidate() {
	if c.local != nil {
		c.local.Clear()
	}
}
