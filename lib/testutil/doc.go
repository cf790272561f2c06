// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for custody packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that a test
// waiting on a goroutine fails instead of hanging. These are the only
// place in the test suite where real wall-clock timeouts are used;
// TTL behavior is tested with lib/clock's fake clock.
//
// [RandomBytes] and [TempPath] cover the two fixtures almost every
// custody test needs: seed or key material, and a path for a SQLite
// store or key file that is removed when the test completes.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no custody-internal dependencies.
package testutil
