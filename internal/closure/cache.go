package closure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/groupgate/groupgate/internal/observability"
)

// Entry kinds, used as cache key prefixes and metric labels.
const (
	KindUserGroups        = "user_groups"
	KindUserCapabilities  = "user_capabilities"
	KindGroupAncestry     = "group_ancestry"
	KindGroupCapabilities = "group_capabilities"
	KindDecision          = "decision"
)

// UserGroupsKey keys the deep membership set of a user.
func UserGroupsKey(userID int64) string {
	return fmt.Sprintf("authz:%s:%d", KindUserGroups, userID)
}

// UserCapabilitiesKey keys the deep capability set of a user.
func UserCapabilitiesKey(userID int64) string {
	return fmt.Sprintf("authz:%s:%d", KindUserCapabilities, userID)
}

// GroupAncestryKey keys the ancestor set of a group.
func GroupAncestryKey(groupID int64) string {
	return fmt.Sprintf("authz:%s:%d", KindGroupAncestry, groupID)
}

// GroupCapabilitiesKey keys the inherited capability set of a group.
func GroupCapabilitiesKey(groupID int64) string {
	return fmt.Sprintf("authz:%s:%d", KindGroupCapabilities, groupID)
}

// Cache memoizes derived sets and access decisions in Redis. Entries never
// expire on their own; coherence comes from explicit invalidation driven by
// mutation events. A cached empty set is stored as an empty JSON array, so
// "computed as empty" stays distinguishable from "not yet computed"
// (redis.Nil). Concurrent misses for the same key are collapsed through
// singleflight; that is an optimization, not a correctness requirement,
// since recomputation is idempotent and side-effect-free.
type Cache struct {
	client  *redis.Client
	metrics *observability.Metrics
	flight  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client degrades to
// pass-through (every fetch invokes the loader).
func NewCache(client *redis.Client, metrics *observability.Metrics) *Cache {
	return &Cache{client: client, metrics: metrics}
}

// FetchIDs loads a cached id set or populates it using the loader.
func (c *Cache) FetchIDs(ctx context.Context, kind, key string, loader func(context.Context) ([]int64, error)) ([]int64, error) {
	if loader == nil {
		return nil, errors.New("closure: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	if ids, ok, err := c.getIDs(ctx, key); err != nil {
		return nil, err
	} else if ok {
		c.metrics.CacheHit(kind)
		return ids, nil
	}
	c.metrics.CacheMiss(kind)

	value, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Another flight may have stored the value while this one queued.
		if ids, ok, err := c.getIDs(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return ids, nil
		}
		ids, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		raw, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, 0).Err(); err != nil {
			return nil, err
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]int64), nil
}

// getIDs reads a cached id set. The second return reports whether the key
// exists: redis.Nil is a miss, a stored empty array is a hit.
func (c *Cache) getIDs(ctx context.Context, key string) ([]int64, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false, fmt.Errorf("closure: corrupt cache entry %s: %w", key, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, true, nil
}

// FetchBool loads a cached boolean decision or populates it using the
// loader. The written key is registered in every tracking set so later
// invalidation can find it without a keyspace scan.
func (c *Cache) FetchBool(ctx context.Context, kind, key string, tracking []string, loader func(context.Context) (bool, error)) (bool, error) {
	if loader == nil {
		return false, errors.New("closure: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		c.metrics.CacheHit(kind)
		return raw == "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, err
	}
	c.metrics.CacheMiss(kind)

	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	stored := "0"
	if value {
		stored = "1"
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, stored, 0)
	for _, set := range tracking {
		pipe.SAdd(ctx, set, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return value, nil
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(ctx context.Context, kind string, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	dropped, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return err
	}
	c.metrics.CacheInvalidate(kind, int(dropped))
	return nil
}

// InvalidateSet drops every key registered in the tracking set, then the
// set itself.
func (c *Cache) InvalidateSet(ctx context.Context, kind, setKey string) error {
	if c == nil || c.client == nil {
		return nil
	}
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	if len(members) > 0 {
		dropped, err := c.client.Del(ctx, members...).Result()
		if err != nil {
			return err
		}
		c.metrics.CacheInvalidate(kind, int(dropped))
	}
	return c.client.Del(ctx, setKey).Err()
}

// InvalidatePattern drops every key matching the pattern. Used only for
// rare coarse events (capability deletion), where no narrower index exists.
func (c *Cache) InvalidatePattern(ctx context.Context, kind, pattern string) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.Invalidate(ctx, kind, keys...)
}

// Flush clears every cache entry unconditionally (store-level flush).
func (c *Cache) Flush(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.FlushDB(ctx).Err()
}
