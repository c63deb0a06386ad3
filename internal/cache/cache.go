package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the key/value layer the batch helpers run against. A zero ttl
// means the entry never expires; absent or expired entries read as misses.
// Redundant writes for the same key are allowed, last write wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the namespaced cache key, e.g. Key("coinmarketcap:quote", "BTC").
func Key(namespace, key string) string {
	return namespace + ":" + key
}

// GetJSON returns the decoded entry for key, or nil when the key is absent.
func GetJSON[T any](ctx context.Context, store Store, key string) (*T, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &out, nil
}

func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := store.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// lookup is the tagged outcome of a single cache probe: either a hit carrying
// the decoded value, or a miss carrying only the key.
type lookup[T any] struct {
	key   string
	value T
	hit   bool
}

// FetchMany resolves one value per key, fetching only the keys missing from
// the cache. Cache hits are resolved before any remote call; when every key
// hits, fetch is never invoked. Otherwise fetch receives the missing keys as
// one batch and every result it returns is written back under keyOf(result),
// including results for keys that were not requested (sibling data from the
// same response). If fetch fails the whole call fails.
func FetchMany[T any](
	ctx context.Context,
	store Store,
	namespace string,
	keys []string,
	keyOf func(T) string,
	ttl time.Duration,
	fetch func(ctx context.Context, missing []string) ([]T, error),
) ([]T, error) {
	lookups := make([]lookup[T], 0, len(keys))
	var missing []string
	for _, key := range keys {
		cacheKey := Key(namespace, key)
		raw, ok, err := store.Get(ctx, cacheKey)
		if err != nil {
			return nil, fmt.Errorf("cache get %s: %w", cacheKey, err)
		}
		if !ok {
			lookups = append(lookups, lookup[T]{key: key})
			missing = append(missing, key)
			continue
		}
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode cache entry %s: %w", cacheKey, err)
		}
		lookups = append(lookups, lookup[T]{key: key, value: value, hit: true})
	}

	hits := make([]T, 0, len(keys))
	for _, l := range lookups {
		if l.hit {
			hits = append(hits, l.value)
		}
	}
	if len(missing) == 0 {
		return hits, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, value := range fetched {
		if err := SetJSON(ctx, store, Key(namespace, keyOf(value)), value, ttl); err != nil {
			return nil, err
		}
	}
	return append(hits, fetched...), nil
}
