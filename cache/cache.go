// Package cache holds computed tabulation results keyed by subcategory.
//
// Entries live under a per-subcategory generation number. Invalidate bumps
// the generation, so a result computed before a mutation and stored after it
// lands under a generation nobody reads anymore.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis caches tabulation results in one hash per subcategory generation.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// Dial connects to Redis and verifies the connection.
func Dial(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func generationKey(subcategoryID int64) string {
	return fmt.Sprintf("tabulation:%d:gen", subcategoryID)
}

func entriesKey(subcategoryID, gen int64) string {
	return fmt.Sprintf("tabulation:%d:%d", subcategoryID, gen)
}

// Generation returns the current generation for a subcategory.
func (c *Redis) Generation(ctx context.Context, subcategoryID int64) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(subcategoryID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached value for field, if present.
func (c *Redis) Get(ctx context.Context, subcategoryID, gen int64, field string) ([]byte, bool, error) {
	b, err := c.rdb.HGet(ctx, entriesKey(subcategoryID, gen), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores value under the given generation.
func (c *Redis) Set(ctx context.Context, subcategoryID, gen int64, field string, value []byte) error {
	key := entriesKey(subcategoryID, gen)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate starts a new generation for the subcategory.
func (c *Redis) Invalidate(ctx context.Context, subcategoryID int64) error {
	return c.rdb.Incr(ctx, generationKey(subcategoryID)).Err()
}

// Noop never holds anything.
type Noop struct{}

func (Noop) Generation(context.Context, int64) (int64, error) { return 0, nil }

func (Noop) Get(context.Context, int64, int64, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, int64, int64, string, []byte) error { return nil }

func (Noop) Invalidate(context.Context, int64) error { return nil }
