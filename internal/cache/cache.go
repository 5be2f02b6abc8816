// Package cache provides the cache-aside layer used for profile reads.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encodable values by key. Get reports a miss with
// ok == false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (ok bool, err error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lotusmap_cache_lookups_total",
		Help: "Cache lookups by result",
	},
	[]string{"result"},
)

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr. A failed ping is returned so callers can fall
// back to another cache.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "could not connect to redis")
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		lookups.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		return false, errors.Wrapf(err, "redis get %s", key)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		lookups.WithLabelValues("error").Inc()
		return false, errors.Wrapf(err, "decode cached %s", key)
	}
	lookups.WithLabelValues("hit").Inc()
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(r.client.Set(ctx, key, b, ttl).Err(), "redis set %s", key)
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(r.client.Del(ctx, keys...).Err(), "redis del")
}

// DeletePrefix walks matching keys with SCAN rather than KEYS so a large
// keyspace does not block the server.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.Delete(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrapf(err, "redis scan %s", prefix)
	}
	return r.Delete(ctx, batch...)
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Memory is an in-process Cache for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value   []byte
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.data[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		lookups.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(e.value, dst); err != nil {
		lookups.WithLabelValues("error").Inc()
		return false, errors.Wrapf(err, "decode cached %s", key)
	}
	lookups.WithLabelValues("hit").Inc()
	return true, nil
}

// Set stores v. A zero ttl never expires.
func (m *Memory) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = entry{value: b, expires: expires}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string, dst any) (bool, error)          { return false, nil }
func (Nop) Set(ctx context.Context, key string, v any, ttl time.Duration) error { return nil }
func (Nop) Delete(ctx context.Context, keys ...string) error                    { return nil }
func (Nop) DeletePrefix(ctx context.Context, prefix string) error               { return nil }
