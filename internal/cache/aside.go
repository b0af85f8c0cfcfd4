package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/consoleblue/consoleblue/pkg/logger"
	"github.com/consoleblue/consoleblue/pkg/metrics"
)

// Result annotates a payload with whether it was served from cache.
type Result[T any] struct {
	Payload  T
	Cached   bool
	CachedAt *time.Time
}

// ReadThrough implements the cache-aside read path for one endpoint. On a
// hit it returns the stored payload; on a miss it invokes fetch and writes
// the result back under the endpoint's TTL.
//
// A store failure is downgraded to a forced miss: the read stays functional
// as long as fetch succeeds. A fetch failure propagates untouched and
// nothing is cached. Concurrent misses for the same key may each invoke
// fetch; there is no single-flight deduplication.
func ReadThrough[T any](ctx context.Context, store *Store, policy Policy, key Key, bypass bool, fetch func(context.Context) (T, error)) (Result[T], error) {
	log := logger.WithModule("cache")
	keyStr := key.String()

	if bypass {
		metrics.CacheLookups.WithLabelValues(string(key.Endpoint), "bypass").Inc()
	} else {
		entry, ok, err := store.Get(ctx, keyStr)
		switch {
		case err != nil:
			// Degraded but functional: treat the unavailable store as a miss.
			log.Warn("cache read failed, forcing miss", zap.String("key", keyStr), zap.Error(err))
		case ok:
			var payload T
			if err := json.Unmarshal(entry.Payload, &payload); err != nil {
				log.Warn("cached payload undecodable, forcing miss", zap.String("key", keyStr), zap.Error(err))
			} else {
				metrics.CacheLookups.WithLabelValues(string(key.Endpoint), "hit").Inc()
				cachedAt := entry.UpdatedAt
				return Result[T]{Payload: payload, Cached: true, CachedAt: &cachedAt}, nil
			}
		}
		metrics.CacheLookups.WithLabelValues(string(key.Endpoint), "miss").Inc()
	}

	payload, err := fetch(ctx)
	if err != nil {
		return Result[T]{}, err
	}

	if _, err := store.Put(ctx, key, payload, policy.TTL(key.Endpoint)); err != nil {
		// The live result is still good; only the next reader pays for this.
		log.Warn("cache write failed", zap.String("key", keyStr), zap.Error(err))
	}

	return Result[T]{Payload: payload}, nil
}
