// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package revocation tracks whether delegations have been revoked.
//
// [Cache] answers IsRevoked from the record store while an entry is
// younger than its TTL (five minutes by default) and otherwise asks the
// [Authority] once, with a bounded timeout. A failed check is
// [ErrRevocationCheckFailed], never a "not revoked" answer.
//
// [HTTPClient] talks to a remote authority over HTTP. [Registry] and
// [NewHandler] are the server side: the registry verifies revoke
// invocations and stores records, and the handler exposes
//
//	GET  /revocations/{cid}  200 with the record, or 404
//	POST /revocations        body: CBOR invocation archive
package revocation
