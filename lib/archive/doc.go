// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive converts a signing keypair between its in-memory
// [KeyPairArchive] form and the [EncryptedRecord] kept in durable
// storage.
//
// Serialization is deterministic CBOR (lib/codec): a map with an "id"
// text string and a "keys" map from did:key to private key byte
// string. [Seal] encrypts that serialization through a [Cipher], in
// practice the custodian. [Open] reverses it and validates the decoded
// shape. A decoding failure after successful decryption is
// [ErrCorruptArchive], never the cipher's authentication error, so
// callers can tell a damaged archive from a wrong seed.
//
// [Escrow] and [Recover] move an archive to and from an age file
// encrypted to operator recovery keys.
package archive
