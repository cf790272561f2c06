// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session wires the custody components together for one
// logged-in lifetime of an identity.
//
// [Register] runs on first use: a credential ceremony produces the
// seed, the seed initializes a fresh custodian, the custodian
// generates a signing keypair, and the keypair is sealed into an
// encrypted archive. Only the credential record, the encrypted archive,
// and the public identity are written to the store.
//
// [Open] runs on every later start: a fresh assertion reproduces the
// seed, the seed re-derives the protection key, and the archive is
// opened and restored into the custodian. A different credential or
// authenticator yields a different seed, and the archive fails to
// decrypt.
//
// Either way the caller ends up with a [Session] whose Authority
// creates, imports, authorizes, and revokes delegations. The seed is
// zeroed as soon as the custodian has it; the plaintext archive is
// zeroed as soon as it is sealed or restored.
package session
