// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is custody's durable record store.
//
// A [Store] is get/set/remove over whole records addressed by string
// keys. The fixed keys (KeyCredential, KeyArchive, and so on) and the
// JSON record types in records.go define what custody persists:
//
//   - the credential record, which never contains the derived seed;
//   - the encrypted key archive, the only form the private key takes
//     at rest;
//   - the public identity;
//   - the created and received delegation lists;
//   - the revocation cache.
//
// [Memory] is for tests and throwaway sessions. [SQLite] persists to a
// database opened through lib/sqlitepool.
package store
