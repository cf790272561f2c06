// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for key escrow.
//
// An operator who wants a recovery path that does not depend on the
// hardware credential generates an age keypair ([GenerateKeypair]) and
// keeps the private half offline. custody can then export the signing
// key archive encrypted to that public key ([Encrypt]). The output is
// ASCII-armored so it can be printed or pasted.
//
// Private keys and decrypted plaintext are returned in
// [secret.Buffer] values.
package sealed
