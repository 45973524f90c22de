package dashcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindmate/cognition/internal/patient"
)

const defaultKeyPrefix = "mindmate:dashboard:"

// Redis is a Cache shared between processes. Entries are stored as JSON
// with the key's expiry matching the entry's ExpiresAt. Session updates
// run under WATCH so concurrent writers retry instead of losing summaries.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func newRedis(o options) *Redis {
	return &Redis{client: o.redisClient, prefix: o.keyPrefix, ttl: o.ttl, now: o.now}
}

func (r *Redis) key(patientID string) string {
	return r.prefix + patientID
}

const maxWatchRetries = 5

func decodeEntry(val string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

func (r *Redis) Get(ctx context.Context, patientID string) (*Entry, error) {
	key := r.key(patientID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	e, err := decodeEntry(val)
	if err != nil {
		return nil, err
	}
	if e.expired(r.now()) {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("delete expired entry: %w", err)
		}
		return nil, nil
	}
	return e, nil
}

func (r *Redis) Set(ctx context.Context, patientID string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	entry.stamp(patientID, r.now(), ttl)
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(patientID), val, ttl).Err(); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, patientID string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(patientID)).Result()
	if err != nil {
		return false, fmt.Errorf("invalidate cache entry: %w", err)
	}
	return n > 0, nil
}

// keys lists every cache key under the prefix.
func (r *Redis) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

func (r *Redis) ClearAll(ctx context.Context) (int, error) {
	keys, err := r.keys(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return int(n), nil
}

// sweep decodes every entry and reports which keys have expired.
func (r *Redis) sweep(ctx context.Context) (total int, expired []string, err error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0, nil, err
	}
	now := r.now()
	for _, key := range keys {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return 0, nil, fmt.Errorf("get cache entry: %w", err)
		}
		total++
		e, err := decodeEntry(val)
		if err != nil || e.expired(now) {
			expired = append(expired, key)
		}
	}
	return total, expired, nil
}

// CleanupExpired deletes the keys a sweep found expired. Each key is
// re-read under WATCH first, so an entry rewritten after the sweep survives.
func (r *Redis) CleanupExpired(ctx context.Context) (int, error) {
	_, expired, err := r.sweep(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range expired {
		ok, err := r.deleteIfExpired(ctx, key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// deleteIfExpired removes key only if it still holds an expired or
// undecodable entry. A concurrent write aborts the delete.
func (r *Redis) deleteIfExpired(ctx context.Context, key string) (bool, error) {
	deleted := false
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if e, err := decodeEntry(val); err == nil && !e.expired(r.now()) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete expired entry: %w", err)
	}
	return deleted, nil
}

func (r *Redis) UpdateSessionData(ctx context.Context, patientID string, summary patient.Summary) (bool, error) {
	key := r.key(patientID)

	updated := false
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			updated = false
			return nil
		}
		if err != nil {
			return err
		}
		e, err := decodeEntry(val)
		if err != nil {
			return err
		}
		e.addSummary(summary, r.now())
		newVal, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, newVal, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("update session data: %w", err)
		}
		return updated, nil
	}
	return false, fmt.Errorf("update session data: %w", redis.TxFailedErr)
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	total, expired, err := r.sweep(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:         BackendRedis,
		TotalEntries:    total,
		ActiveEntries:   total - len(expired),
		ExpiredEntries:  len(expired),
		DefaultTTLHours: r.ttl.Hours(),
	}, nil
}
