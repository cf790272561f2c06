// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that make time-based decisions (delegation expiry,
// revocation cache freshness, network timeouts) hold a Clock instead of
// calling the time package directly. Real() is the production clock.
// Fake() is a deterministic clock for tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	cache := revocation.NewCache(revocation.CacheConfig{Clock: c, ...})
//	c.Advance(5 * time.Minute) // cache entries are now stale
package clock
