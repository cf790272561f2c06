// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/store"
)

const (
	// DefaultTTL is how long a status answer is served from the cache.
	DefaultTTL = 5 * time.Minute

	// DefaultTimeout bounds one remote status check.
	DefaultTimeout = 10 * time.Second
)

// CacheEntry is one cached status answer.
type CacheEntry struct {
	Revoked   bool      `json:"revoked"`
	CheckedAt time.Time `json:"checkedAt"`
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Store holds the cache under store.KeyRevocationCache.
	Store store.Store

	Authority Authority

	// Clock defaults to the real clock.
	Clock clock.Clock

	// TTL defaults to DefaultTTL.
	TTL time.Duration

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Cache answers revocation status with a TTL over the authority.
type Cache struct {
	store     store.Store
	authority Authority
	clock     clock.Clock
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	lookups   *prometheus.CounterVec

	// mu serializes this process's read-modify-write of the cache
	// record. Other processes sharing the store are not coordinated.
	// It is never held across a remote check.
	mu sync.Mutex

	// checks coalesces concurrent remote checks of one delegation.
	checks singleflight.Group
}

// NewCache creates a Cache.
func NewCache(config CacheConfig) (*Cache, error) {
	if config.Store == nil || config.Authority == nil {
		return nil, fmt.Errorf("revocation: cache needs a store and an authority")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	lookups, err := newLookupCounter(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("revocation: registering metrics: %w", err)
	}
	return &Cache{
		store:     config.Store,
		authority: config.Authority,
		clock:     config.Clock,
		ttl:       config.TTL,
		timeout:   config.Timeout,
		logger:    config.Logger,
		lookups:   lookups,
	}, nil
}

// IsRevoked reports whether the delegation is revoked. A cached answer
// younger than the TTL is returned without contacting the authority.
// Otherwise the authority is asked once and the answer cached;
// concurrent callers for the same delegation share that one check.
// Any failure to get an answer is ErrRevocationCheckFailed.
func (c *Cache) IsRevoked(ctx context.Context, delegationID string) (bool, error) {
	entry, ok, err := c.Entry(ctx, delegationID)
	if err != nil {
		c.lookups.WithLabelValues(resultError).Inc()
		return false, fmt.Errorf("%w: %s: %v", ErrRevocationCheckFailed, delegationID, err)
	}
	if ok && c.clock.Now().Sub(entry.CheckedAt) < c.ttl {
		c.lookups.WithLabelValues(resultHit).Inc()
		return entry.Revoked, nil
	}

	// The shared check outlives any one caller's cancellation; each
	// caller stops waiting on its own context.
	results := c.checks.DoChan(delegationID, func() (any, error) {
		return c.check(context.WithoutCancel(ctx), delegationID)
	})
	select {
	case result := <-results:
		if result.Err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrRevocationCheckFailed, delegationID, result.Err)
		}
		return result.Val.(bool), nil
	case <-ctx.Done():
		c.lookups.WithLabelValues(resultError).Inc()
		return false, fmt.Errorf("%w: %s: %v", ErrRevocationCheckFailed, delegationID, ctx.Err())
	}
}

// check asks the authority for the delegation's status and caches the
// answer.
func (c *Cache) check(ctx context.Context, delegationID string) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	revoked, err := c.authority.Status(checkCtx, delegationID)
	if err != nil {
		c.lookups.WithLabelValues(resultError).Inc()
		c.logger.Warn("revocation check failed", "delegation", delegationID, "error", err)
		return false, err
	}
	c.lookups.WithLabelValues(resultMiss).Inc()

	if err := c.Set(ctx, delegationID, revoked); err != nil {
		// The answer is still good; it just will not be cached.
		c.logger.Warn("storing revocation cache failed", "error", err)
	}
	return revoked, nil
}

// Invalidate drops the cached answer for the delegation so the next
// IsRevoked asks the authority.
func (c *Cache) Invalidate(ctx context.Context, delegationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[delegationID]; !ok {
		return nil
	}
	delete(entries, delegationID)
	return store.SetJSON(ctx, c.store, store.KeyRevocationCache, entries)
}

// Set records a known status for the delegation as of now.
func (c *Cache) Set(ctx context.Context, delegationID string, revoked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	entries[delegationID] = CacheEntry{Revoked: revoked, CheckedAt: c.clock.Now()}
	return store.SetJSON(ctx, c.store, store.KeyRevocationCache, entries)
}

// Entry returns the cached entry for the delegation, if any.
func (c *Cache) Entry(ctx context.Context, delegationID string) (CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry, ok := entries[delegationID]
	return entry, ok, nil
}

func (c *Cache) load(ctx context.Context) (map[string]CacheEntry, error) {
	entries := make(map[string]CacheEntry)
	if _, err := store.GetJSON(ctx, c.store, store.KeyRevocationCache, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]CacheEntry)
	}
	return entries, nil
}
