// Package cache implements cache-aside reads over a pluggable key/value backend.
//
// The cache is best-effort: any backend failure is logged and counted, and the
// value is computed directly, so a broken backend slows requests down but never
// fails them.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/singleflight"

	"github.com/siahsang/notes/internal/metrics"
)

var ErrUnavailable = xerrors.Message("Cache backend unavailable")

// UnavailableError wraps a backend failure so callers can match it with
// errors.Is(err, ErrUnavailable) while keeping the cause.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return "cache " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(op, key string, err error) error {
	return &UnavailableError{Op: op, Key: key, Err: err}
}

// Backend stores encoded values. Get reports a miss with found == false and a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Cache struct {
	backend Backend
	log     *slog.Logger
	timeout time.Duration
	group   singleflight.Group
}

// New returns a cache over backend. timeout bounds each backend call; zero means no bound.
func New(backend Backend, log *slog.Logger, timeout time.Duration) *Cache {
	return &Cache{
		backend: backend,
		log:     log,
		timeout: timeout,
	}
}

// GetOrCompute returns the value cached under key, or computes, stores and
// returns it. Concurrent misses on the same key share a single compute call.
// A nil cache computes every time.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || c.backend == nil {
		return compute(ctx)
	}

	kind := Kind(key)
	raw, found, err := c.get(ctx, key)
	switch {
	case err != nil:
		c.degraded(ctx, kind, key, err)
		return compute(ctx)

	case found:
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			metrics.ObserveCache(kind, metrics.CacheHit)
			return value, nil
		} else {
			c.log.WarnContext(ctx, "Dropping undecodable cache entry", "key", key, "error", err)
			if err := c.delete(ctx, key); err != nil {
				c.log.WarnContext(ctx, "Failed to drop cache entry", "key", key, "error", err)
			}
		}
	}

	metrics.ObserveCache(kind, metrics.CacheMiss)

	// the shared computation must outlive the first caller's request
	shared := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(key, func() (any, error) {
		value, err := compute(shared)
		if err != nil {
			return value, err
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			c.log.WarnContext(ctx, "Value is not cacheable", "key", key, "error", err)
			return value, nil
		}
		if err := c.set(shared, key, encoded, ttl); err != nil {
			c.degraded(ctx, kind, key, err)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := result.(T)
	return value, nil
}

func (c *Cache) degraded(ctx context.Context, kind, key string, err error) {
	metrics.ObserveCache(kind, metrics.CacheDegraded)
	c.log.WarnContext(ctx, "Cache degraded, computing directly", "key", key, "error", xerrors.Sprint(err))
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	value, found, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false, unavailable("get", key, err)
	}
	return value, found, nil
}

func (c *Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.backend.Delete(ctx, key); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// Kind is the entity segment of a "namespace:kind:params" key, used as a metric label.
func Kind(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[1]
}
