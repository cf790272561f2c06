// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/custody/lib/secret"
)

// Cipher is the authenticated encryption the archive is sealed with.
// The custodian handle implements it with the seed-derived protection
// key, which never leaves the custodian.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce []byte, err error)
	Decrypt(ctx context.Context, ciphertext, nonce []byte) ([]byte, error)
}

// EncryptedRecord is the only form a private key takes in durable
// storage.
type EncryptedRecord struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// Seal serializes a and encrypts it with cipher.
func Seal(ctx context.Context, cipher Cipher, a *KeyPairArchive) (*EncryptedRecord, error) {
	plaintext, err := Marshal(a)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(plaintext)

	ciphertext, nonce, err := cipher.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("archive: sealing %s: %w", a.ID, err)
	}
	return &EncryptedRecord{Ciphertext: ciphertext, Nonce: nonce}, nil
}

// Open decrypts record with cipher and decodes the archive. A failure
// to decrypt is returned as the cipher reported it (a wrong seed shows
// up as the custodian's decryption error); a failure to decode after
// successful decryption is ErrCorruptArchive.
func Open(ctx context.Context, cipher Cipher, record *EncryptedRecord) (*KeyPairArchive, error) {
	if record == nil || len(record.Ciphertext) == 0 || len(record.Nonce) == 0 {
		return nil, fmt.Errorf("%w: record has no ciphertext or nonce", ErrCorruptArchive)
	}
	plaintext, err := cipher.Decrypt(ctx, record.Ciphertext, record.Nonce)
	if err != nil {
		return nil, fmt.Errorf("archive: opening: %w", err)
	}
	defer secret.Zero(plaintext)
	return Unmarshal(plaintext)
}
