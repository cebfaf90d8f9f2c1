// Package redis implements the shared statistics cache and the distributed
// lock used by background jobs.
//
// Key components:
//   - StatsCache: computed statistics keyed by a digest of the normalised query
//   - Locker: SETNX locks so that only one worker snapshots a period
package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/gymstats/gymstats-hub/pkg/circuitbreaker"
	"github.com/gymstats/gymstats-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Addr is "host:port". An empty address disables the cache.
	Addr string `yaml:"addr"`

	Password string `yaml:"password"`

	// DB is the Redis database number (0-15).
	DB int `yaml:"db" validate:"min=0,max=15"`

	PoolSize     int           `yaml:"pool_size" validate:"min=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// KeyPrefix namespaces every key written by this package.
	KeyPrefix string `yaml:"key_prefix"`

	// TTL is the lifetime of cached statistics.
	TTL time.Duration `yaml:"ttl" validate:"min=0"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "gymstats:",
		TTL:          TTLStatistics,
	}
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheInvalidTTL is returned when an invalid TTL is provided.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrLockHeld is returned when another holder owns the lock.
	ErrLockHeld = errors.New("cache: lock is held")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES AND TTLs
// ══════════════════════════════════════════════════════════════════════════════

const (
	// PrefixStats is the prefix for cached statistics.
	PrefixStats = "stats:"

	// PrefixLock is the prefix for distributed lock keys.
	PrefixLock = "lock:"
)

const (
	// TTLStatistics is the default TTL for cached statistics. New sessions
	// change results, so entries are short-lived.
	TTLStatistics = 10 * time.Minute

	// TTLDistributedLock is the default lock TTL.
	TTLDistributedLock = 30 * time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// NewClient creates a client and checks the server is reachable.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return client, nil
}

// IsTransient reports network level failures worth one more try.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// StatsCache stores serialized statistics. It implements query.Cache.
//
// Reads and writes go through a circuit breaker: while it is open Get reports
// a miss and Set is dropped, so queries fall back to the store.
type StatsCache struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	retrier *retry.Retrier
	breaker *circuitbreaker.Breaker
}

// NewStatsCache creates a cache on client. A zero ttl uses TTLStatistics.
func NewStatsCache(client redis.Cmdable, prefix string, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = TTLStatistics
	}
	return &StatsCache{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		retrier: retry.CacheRetrier(IsTransient),
		breaker: circuitbreaker.ForCache(nil),
	}
}

// WithBreaker replaces the default breaker.
func (c *StatsCache) WithBreaker(b *circuitbreaker.Breaker) *StatsCache {
	c.breaker = b
	return c
}

// Key returns the Redis key of an entry: the namespace stays readable for
// SCAN based invalidation, the query key is hashed to a fixed length.
func (c *StatsCache) Key(namespace, key string) string {
	sum := blake2b.Sum256([]byte(key))
	return c.prefix + PrefixStats + namespace + ":" + hex.EncodeToString(sum[:16])
}

// Get returns the cached value. A miss is not an error.
func (c *StatsCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrCacheKeyEmpty
	}

	var (
		data []byte
		hit  bool
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			data, err = c.client.Get(ctx, c.Key(namespace, key)).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			hit = err == nil
			return err
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", namespace, err)
	}
	if !hit {
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores value with the cache TTL.
func (c *StatsCache) Set(ctx context.Context, namespace, key string, value []byte) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.client.Set(ctx, c.Key(namespace, key), value, c.ttl).Err()
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache set %s: %w", namespace, err)
	}
	return nil
}

// Invalidate deletes every entry of a namespace, or of all namespaces when
// namespace is empty, and returns how many keys were removed.
func (c *StatsCache) Invalidate(ctx context.Context, namespace string) (int, error) {
	pattern := c.prefix + PrefixStats + "*"
	if namespace != "" {
		pattern = c.prefix + PrefixStats + namespace + ":*"
	}

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache delete: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
