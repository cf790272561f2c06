// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the pragmas custody
// expects for its durable record store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers Take a
// connection, use it from one goroutine, and Put it back, or use
// [Pool.With] to do both.
//
// Every connection is prepared with:
//
//   - journal_mode=WAL so readers never block the single writer.
//   - synchronous=FULL. A write of the encrypted key archive is
//     durable when it returns.
//   - busy_timeout=5000 to ride out a concurrent writer (a second CLI
//     invocation against the same database).
//   - secure_delete=ON so removed records are overwritten, not left
//     in free pages.
//   - temp_store=MEMORY.
package sqlitepool
