package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "emporium:product:"

// CachedStore puts a redis read-through cache in front of GetProduct.
// Product writes invalidate or prime the key after the backend write; cart
// operations always reach the backend. Redis errors are logged and never
// fail a request.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewCachedStore(backend Store, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{Store: backend, rdb: rdb, ttl: ttl, log: log}
}

// OpenRedis connects and pings within pingTimeout.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	err := withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func versionKey(id string) string {
	return cacheKeyPrefix + id + ":v"
}

var errStaleRead = errors.New("product changed during cache fill")

func (c *CachedStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var p Product
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, true, nil
		}
		c.log.Warn("cache entry unreadable", zap.String("id", id))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache get failed", zap.String("id", id), zap.Error(err))
	}

	// the version is read before the backend so a write that lands in
	// between makes the fill below a no-op
	ver, verErr := c.version(ctx, id)

	p, found, err := c.Store.GetProduct(ctx, id)
	if err != nil || !found {
		return p, found, err
	}
	if verErr == nil {
		c.fill(ctx, p, ver)
	}
	return p, true, nil
}

func (c *CachedStore) version(ctx context.Context, id string) (string, error) {
	ver, err := c.rdb.Get(ctx, versionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		c.log.Warn("cache version read failed", zap.String("id", id), zap.Error(err))
		return "", err
	}
	return ver, nil
}

// fill stores p only if the product version is still ver when the write
// commits.
func (c *CachedStore) fill(ctx context.Context, p Product, ver string) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}

	vkey := versionKey(p.ID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != ver {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(p.ID), raw, c.ttl)
			return nil
		})
		return err
	}, vkey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("cache fill skipped", zap.String("id", p.ID))
	default:
		c.log.Warn("cache set failed", zap.String("id", p.ID), zap.Error(err))
	}
}

func (c *CachedStore) CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error) {
	p, err := c.Store.CreateProduct(ctx, category, name, price)
	if err != nil {
		return p, err
	}
	c.set(ctx, p)
	return p, nil
}

func (c *CachedStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	p, found, err := c.Store.UpdateProduct(ctx, id, patch)
	c.invalidate(ctx, id)
	return p, found, err
}

func (c *CachedStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	found, err := c.Store.DeleteProduct(ctx, id)
	c.invalidate(ctx, id)
	return found, err
}

func (c *CachedStore) Close(ctx context.Context) error {
	err := c.Store.Close(ctx)
	if cerr := c.rdb.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close redis: %w", cerr)
	}
	return err
}

func (c *CachedStore) set(ctx context.Context, p Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(p.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("id", p.ID), zap.Error(err))
	}
}

// invalidate bumps the product version before dropping the key, so reads
// that started before the write cannot put the old product back.
func (c *CachedStore) invalidate(ctx context.Context, id string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL(c.ttl))
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		c.log.Warn("cache invalidate failed", zap.String("id", id), zap.Error(err))
	}
}

// versionTTL outlives any cache entry written under the previous version.
func versionTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return 2 * ttl
}
