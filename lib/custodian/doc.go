// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custodian isolates key material behind a message boundary.
//
// A custodian is a goroutine that owns the protection key (derived from
// the authenticator seed with HKDF-SHA256) and the signing keypair.
// Callers reach it only through a [Handle], which encodes each operation
// as a CBOR [Request] and waits for the matching [Response]. Requests
// are handled one at a time in arrival order. Seeds, plaintext, and
// private keys are zeroed inside the custodian as soon as they are no
// longer needed, and Lock zeroes everything.
//
// The lifecycle is:
//
//	Uninitialized --init--> Initialized --generateKeypair/restoreKeypair--> KeyLoaded
//	any state --lock--> Locked --init--> Initialized
//
// Encryption uses XChaCha20-Poly1305 with a random 24-byte nonce per
// call. Signatures are Ed25519 or ECDSA P-256 over SHA-256 in raw r||s
// form, so [Handle.Signer] can back COSE_Sign1 envelopes directly.
package custodian
