// Package settings exposes the DB-backed runtime tunables through a
// typed, TTL-cached accessor. A missing key is always an error: the
// defaults live in the settings table (seeded by migration), never in
// call sites.
package settings

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/onicoach/oni/internal/storage"
)

// Keys the engine requires. Validate checks them all at startup so a
// half-configured deployment fails before the first tick.
const (
	KeyIgnoreInterval     = "IGNORE_INTERVAL"
	KeyIgnoreMaxRetry     = "IGNORE_MAX_RETRY"
	KeyMaxRetry           = "MAX_RETRY"
	KeyRetryDelay         = "RETRY_DELAY"
	KeyLimitDayZapCount   = "LIMIT_DAY_ZAP_COUNT"
	KeyPunishmentType     = "PUNISHMENT_TYPE"
	KeyPunishmentMaxValue = "PUNISHMENT_MAX_VALUE"
	KeyPunishmentPaused   = "PUNISHMENT_PAUSED"
	KeyPlanTime           = "PLAN_TIME"
)

var requiredKeys = []string{
	KeyIgnoreInterval,
	KeyIgnoreMaxRetry,
	KeyMaxRetry,
	KeyRetryDelay,
	KeyLimitDayZapCount,
	KeyPunishmentType,
	KeyPunishmentMaxValue,
	KeyPunishmentPaused,
	KeyPlanTime,
}

const defaultTTL = 60 * time.Second

type cached struct {
	value    string
	expireAt time.Time
}

// Cache reads settings from the store with a bounded-staleness cache.
type Cache struct {
	store *storage.Store
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cached
}

// NewCache creates a Cache over the store. A non-positive ttl uses the
// 60s default.
func NewCache(store *storage.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]cached),
	}
}

// Validate confirms every required key is present and readable. Run at
// startup; a missing key is fatal misconfiguration.
func (c *Cache) Validate() error {
	for _, key := range requiredKeys {
		if _, err := c.String(key); err != nil {
			return fmt.Errorf("settings: required key %s: %w", key, err)
		}
	}
	return nil
}

// String returns the raw value for key.
func (c *Cache) String(key string) (string, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expireAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	st, err := c.store.GetSetting(key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cached{value: st.Value, expireAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return st.Value, nil
}

// Int returns the value for key parsed as an integer.
func (c *Cache) Int(key string) (int, error) {
	raw, err := c.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("settings: %s is not an integer: %w", key, err)
	}
	return n, nil
}

// Bool returns the value for key parsed as a boolean.
func (c *Cache) Bool(key string) (bool, error) {
	raw, err := c.String(key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("settings: %s is not a boolean: %w", key, err)
	}
	return b, nil
}

// Seconds returns an integer-seconds key as a Duration.
func (c *Cache) Seconds(key string) (time.Duration, error) {
	n, err := c.Int(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// Minutes returns an integer-minutes key as a Duration.
func (c *Cache) Minutes(key string) (time.Duration, error) {
	n, err := c.Int(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

// Invalidate drops one key from the cache, or everything when key is
// empty. Called after a settings write so the next read is fresh.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]cached)
		return
	}
	delete(c.entries, key)
}
