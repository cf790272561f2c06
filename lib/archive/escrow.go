// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
)

// Escrow opens record with cipher and re-encrypts the archive to the
// given age recipients. The plaintext exists only between the two
// operations and is zeroed before return. The result is an armored age
// file an operator can decrypt offline with [Recover].
func Escrow(ctx context.Context, cipher Cipher, record *EncryptedRecord, recipients []string) ([]byte, error) {
	if _, err := sealed.ParseRecipients(recipients); err != nil {
		return nil, fmt.Errorf("archive: escrow: %w", err)
	}
	a, err := Open(ctx, cipher, record)
	if err != nil {
		return nil, err
	}
	defer a.Zero()

	plaintext, err := Marshal(a)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(plaintext)

	escrowed, err := sealed.Encrypt(plaintext, recipients)
	if err != nil {
		return nil, fmt.Errorf("archive: escrow: %w", err)
	}
	return escrowed, nil
}

// Recover decrypts an escrowed archive with an age private key.
func Recover(escrowed []byte, privateKey *secret.Buffer) (*KeyPairArchive, error) {
	plaintext, err := sealed.Decrypt(escrowed, privateKey)
	if err != nil {
		return nil, fmt.Errorf("archive: recover: %w", err)
	}
	defer plaintext.Close()
	return Unmarshal(plaintext.Bytes())
}
