package cache

import (
	"fmt"
	"strings"
	"time"
)

// ReportCache memoizes rendered reports per ledger version. A new version
// produces new keys, so stale entries are never served and simply age out.
type ReportCache struct {
	lru *LRUCache[any]
}

func NewReportCache(maxSize int, ttl time.Duration) *ReportCache {
	return &ReportCache{lru: NewLRUCache[any](maxSize, ttl)}
}

// ReportKey builds the key of report name computed over owner's ledger at version.
func ReportKey(owner string, version int64, name string, params ...string) string {
	key := fmt.Sprintf("%s@%d/%s", owner, version, name)
	if len(params) > 0 {
		key += "?" + strings.Join(params, "&")
	}
	return key
}

// Report returns the cached report for key, computing it on a miss.
func Report[T any](c *ReportCache, key string, compute func() (T, error)) (T, error) {
	v, err := c.lru.GetOrCompute(key, func() (any, error) { return compute() })
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		// same key cached with another type; recompute rather than fail
		fresh, err := compute()
		if err != nil {
			return fresh, err
		}
		c.lru.Set(key, fresh)
		return fresh, nil
	}
	return typed, nil
}

func (c *ReportCache) CleanExpired() int { return c.lru.CleanExpired() }

func (c *ReportCache) Stats() Stats { return c.lru.Stats() }
