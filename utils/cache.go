package utils

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL = time.Hour
	localCacheSize  = 512
	localCacheTTL   = 5 * time.Minute
	cacheOpTimeout  = 2 * time.Second
)

var (
	// localCache serves when Redis is absent; entries share one TTL.
	localCache = expirable.NewLRU[string, []byte](localCacheSize, nil, localCacheTTL)
	cacheFill  singleflight.Group
)

// CacheGetBytes returns cached bytes for a key from Redis or the in-process LRU.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return localCache.Get(key)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// CacheSetBytes stores bytes with the given TTL (default one hour). The LRU ignores ttl.
func CacheSetBytes(key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	rc := GetRedis()
	if rc == nil {
		localCache.Add(key, b)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// CacheSetJSON marshals v and stores JSON bytes.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	CacheSetBytes(key, b, ttl)
}

// CacheGetJSON decodes the cached value for key into a T.
func CacheGetJSON[T any](key string) (T, bool) {
	var v T
	b, ok := CacheGetBytes(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false
	}
	return v, true
}

// CacheRemember returns the cached T for key, or runs load once across concurrent callers
// and caches its result. Load errors are returned and nothing is cached.
func CacheRemember[T any](key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := CacheGetJSON[T](key); ok {
		return v, nil
	}
	res, err, _ := cacheFill.Do(key, func() (interface{}, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		CacheSetJSON(key, v, ttl)
		return v, nil
	})
	v, _ := res.(T)
	return v, err
}

// InvalidateByPrefix deletes keys that match the given prefix.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		for _, k := range localCache.Keys() {
			if strings.HasPrefix(k, prefix) {
				localCache.Remove(k)
			}
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	iter := rc.Scan(ctx, 0, prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache scan prefix=%s err=%v", prefix, err)
	}
	if len(keys) > 0 {
		if err := rc.Unlink(ctx, keys...).Err(); err != nil && Sugar != nil {
			Sugar.Warnf("cache invalidate prefix=%s err=%v", prefix, err)
		}
	}
}
