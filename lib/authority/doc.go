// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authority runs the delegation protocol for one local identity:
// creating delegations (direct, chained, or bridged across key
// algorithms), importing them from any proof format, checking an
// operation against a held delegation, and revoking.
//
// Signing goes through a custodian; the authority never sees a private
// key. Delegation records live in the record store, and revocation
// status comes from a [revocation.Cache] that fails closed.
package authority
