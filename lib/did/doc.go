// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package did encodes and decodes did:key identities.
//
// A did:key is the public key itself: a multicodec varint naming the
// key type (ed25519-pub 0xed, p256-pub 0x1200) followed by the key
// bytes, base58btc-encoded behind the multibase prefix "z". Identities
// are therefore self-verifying. Anyone holding a DID can check a
// signature without a lookup.
//
//	identity, err := did.Format(did.Ed25519, publicKey)
//	// did:key:z6Mk...
//	key, err := did.Parse(identity)
//	verifierKey, err := key.CryptoKey()
package did
