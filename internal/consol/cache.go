package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "consol:version"
	bumpChannel     = "gl.bump"
)

// ReportBuilder produces consolidated statements.
type ReportBuilder interface {
	Build(ctx context.Context, kind Kind, f Filters) (Report, error)
}

// Cache wraps redis JSON caching behind a global version number.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Get loads a cached value. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(payload, dest)
}

// Set stores value under key for the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other processes.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

// CachedBuilder serves reports from the versioned cache, building on a miss.
type CachedBuilder struct {
	builder ReportBuilder
	cache   *Cache
}

// NewCachedBuilder puts cache in front of builder.
func NewCachedBuilder(builder ReportBuilder, cache *Cache) *CachedBuilder {
	return &CachedBuilder{builder: builder, cache: cache}
}

// Build returns the cached report for kind and f or builds and stores it.
func (c *CachedBuilder) Build(ctx context.Context, kind Kind, f Filters) (Report, error) {
	key, err := c.key(ctx, kind, f)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if ok, err := c.cache.Get(ctx, key, &report); err != nil {
		return Report{}, err
	} else if ok {
		return report, nil
	}
	return c.store(ctx, key, kind, f)
}

// Warm rebuilds the report and overwrites the cached copy.
func (c *CachedBuilder) Warm(ctx context.Context, kind Kind, f Filters) (Report, error) {
	key, err := c.key(ctx, kind, f)
	if err != nil {
		return Report{}, err
	}
	return c.store(ctx, key, kind, f)
}

// Bump invalidates every cached report.
func (c *CachedBuilder) Bump(ctx context.Context) (int64, error) {
	return c.cache.Bump(ctx)
}

func (c *CachedBuilder) key(ctx context.Context, kind Kind, f Filters) (string, error) {
	if c == nil || c.builder == nil {
		return "", errors.New("consol: cached builder not initialised")
	}
	return c.cache.BuildKey(ctx, "consol", "report", string(kind), f.CacheKey())
}

func (c *CachedBuilder) store(ctx context.Context, key string, kind Kind, f Filters) (Report, error) {
	report, err := c.builder.Build(ctx, kind, f)
	if err != nil {
		return Report{}, err
	}
	if err := c.cache.Set(ctx, key, report); err != nil {
		return Report{}, err
	}
	return report, nil
}
