package database

import (
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/mitchellh/copystructure"

	"github.com/safing/recordstore/database/record"
	"github.com/safing/recordstore/log"
)

// recordCache caches records by collection and key.
// Records are copied when they go in and when they come out, so callers
// cannot change cached records. A nil *recordCache is a disabled cache.
type recordCache struct {
	cache   gcache.Cache
	metrics *storeMetrics
}

func newRecordCache(size int, ttl time.Duration, metrics *storeMetrics) *recordCache {
	if size <= 0 {
		return nil
	}

	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &recordCache{
		cache:   builder.Build(),
		metrics: metrics,
	}
}

func cacheKey(collection, key string) string {
	// Collection names cannot contain a slash, so this is unambiguous.
	return collection + "/" + key
}

func (rc *recordCache) get(collection, key string) *record.User {
	if rc == nil {
		return nil
	}

	cacheVal, err := rc.cache.GetIFPresent(cacheKey(collection, key))
	if err != nil {
		rc.metrics.cacheMisses.Inc()
		return nil
	}
	r, ok := cacheVal.(*record.User)
	if !ok {
		rc.metrics.cacheMisses.Inc()
		return nil
	}

	rc.metrics.cacheHits.Inc()
	return copyUser(r)
}

func (rc *recordCache) set(collection, key string, r *record.User) {
	if rc == nil || r == nil {
		return
	}

	_ = rc.cache.Set(cacheKey(collection, key), copyUser(r))
}

func (rc *recordCache) remove(collection, key string) {
	if rc == nil {
		return
	}

	rc.cache.Remove(cacheKey(collection, key))
}

func (rc *recordCache) removeCollection(collection string) {
	if rc == nil {
		return
	}

	prefix := collection + "/"
	for _, k := range rc.cache.Keys(false) {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			rc.cache.Remove(key)
		}
	}
}

func (rc *recordCache) len() int {
	if rc == nil {
		return 0
	}
	return rc.cache.Len(true)
}

func copyUser(r *record.User) *record.User {
	copied, err := copystructure.Copy(r)
	if err != nil {
		log.Warningf("database: failed to copy record %s: %s", r.Name, err)
		return nil
	}
	u, ok := copied.(*record.User)
	if !ok {
		return nil
	}
	return u
}
