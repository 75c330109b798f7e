// Package store is the Redis-backed key/value layer every stateful
// transformer loads prior state from and writes next state to.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key identifies a single stored field: namespace:entity_kind:entity_id:field.
type Key struct {
	Namespace  string
	EntityKind string
	EntityID   string
	Field      string
}

func (k Key) String() string {
	return strings.Join([]string{k.Namespace, k.EntityKind, k.EntityID, k.Field}, ":")
}

// Adapter wraps a redis.Client and tracks recent connectivity failures so
// callers can short-circuit instead of piling up timeouts against a Redis
// server that is already known to be down.
type Adapter struct {
	client *redis.Client
	log    zerolog.Logger

	mu           sync.Mutex
	lastFailure  time.Time
	failureTTL   time.Duration
}

// Config describes how to reach Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New constructs an Adapter. The underlying client connects lazily on first
// use, matching go-redis's own pooling behaviour.
func New(cfg Config, log zerolog.Logger) *Adapter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Adapter{
		client:     client,
		log:        log.With().Str("component", "store").Logger(),
		failureTTL: 30 * time.Second,
	}
}

// Ping verifies connectivity, recording the outcome for RecentlyFailed.
func (a *Adapter) Ping(ctx context.Context) error {
	err := a.client.Ping(ctx).Err()
	a.recordOutcome(err)
	return err
}

// RecentlyFailed reports whether the last recorded operation failed within
// the failure TTL window. A caller can consult this before attempting a store
// round-trip it expects to time out, the same circuit-breaker shortcut the
// original implementation's Redis client exposes.
func (a *Adapter) RecentlyFailed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastFailure.IsZero() {
		return false
	}
	return time.Since(a.lastFailure) < a.failureTTL
}

// SetField stores value (JSON-encoded) at the given key.
func (a *Adapter) SetField(ctx context.Context, key Key, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", key, err)
	}
	err = a.client.Set(ctx, key.String(), payload, 0).Err()
	a.recordOutcome(err)
	if err != nil {
		return fmt.Errorf("store: setting %s: %w", key, err)
	}
	return nil
}

// SetFields stores multiple fields for one entity atomically via a pipeline.
func (a *Adapter) SetFields(ctx context.Context, namespace, entityKind, entityID string, fields map[string]any) error {
	pipe := a.client.TxPipeline()
	for field, value := range fields {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("store: encoding %s.%s: %w", entityID, field, err)
		}
		key := Key{Namespace: namespace, EntityKind: entityKind, EntityID: entityID, Field: field}
		pipe.Set(ctx, key.String(), payload, 0)
	}
	_, err := pipe.Exec(ctx)
	a.recordOutcome(err)
	if err != nil {
		return fmt.Errorf("store: pipelined set for %s/%s: %w", entityKind, entityID, err)
	}
	return nil
}

// GetField loads and JSON-decodes the value at key into dst. It returns
// (false, nil) when the key does not exist — the "first sighting" case
// every transformer must distinguish from a real error.
func (a *Adapter) GetField(ctx context.Context, key Key, dst any) (bool, error) {
	raw, err := a.client.Get(ctx, key.String()).Bytes()
	if err == redis.Nil {
		a.recordOutcome(nil)
		return false, nil
	}
	a.recordOutcome(err)
	if err != nil {
		return false, fmt.Errorf("store: getting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("store: decoding %s: %w", key, err)
	}
	return true, nil
}

// GetAllFields loads every field stored for one entity under the given
// prefix (namespace:entity_kind:entity_id:*), keyed by field name, raw JSON.
func (a *Adapter) GetAllFields(ctx context.Context, namespace, entityKind, entityID string) (map[string]json.RawMessage, error) {
	prefix := strings.Join([]string{namespace, entityKind, entityID}, ":") + ":"
	var cursor uint64
	out := make(map[string]json.RawMessage)
	for {
		keys, next, err := a.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			a.recordOutcome(err)
			return nil, fmt.Errorf("store: scanning %s*: %w", prefix, err)
		}
		if len(keys) > 0 {
			vals, err := a.client.MGet(ctx, keys...).Result()
			if err != nil {
				a.recordOutcome(err)
				return nil, fmt.Errorf("store: mget under %s*: %w", prefix, err)
			}
			for i, k := range keys {
				field := strings.TrimPrefix(k, prefix)
				if s, ok := vals[i].(string); ok {
					out[field] = json.RawMessage(s)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	a.recordOutcome(nil)
	return out, nil
}

// PurgeEntity deletes every field stored for one entity, scanning by the
// same namespace:entity_kind:entity_id: prefix GetAllFields reads. A
// supervising Manager calls this before restarting a crashed child (spec §3
// Lifecycle, §9 ComponentReset), so the restarted component's first round
// never diffs against stale prior state.
func (a *Adapter) PurgeEntity(ctx context.Context, namespace, entityKind, entityID string) error {
	prefix := strings.Join([]string{namespace, entityKind, entityID}, ":") + ":"
	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			a.recordOutcome(err)
			return fmt.Errorf("store: scanning %s* for purge: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := a.client.Del(ctx, keys...).Err(); err != nil {
				a.recordOutcome(err)
				return fmt.Errorf("store: deleting under %s*: %w", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	a.recordOutcome(nil)
	return nil
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) recordOutcome(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.lastFailure = time.Now()
		return
	}
	a.lastFailure = time.Time{}
}
