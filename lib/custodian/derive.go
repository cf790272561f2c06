// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/custody/lib/secret"
)

// KeySize is the protection key size in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	hkdfSaltLabel      = []byte("custody.protection.salt.v1")
	hkdfInfoProtection = []byte("custody.protection-key.v1")

	// aeadAdditionalData binds every ciphertext to this scheme.
	aeadAdditionalData = []byte("custody.custodian.aead.v1")
)

// DeriveProtectionKey derives the protection key from a seed:
// HKDF-SHA256 with salt SHA-256(label || seed) and a fixed info
// string. The same seed always yields the same key. The result is in a
// secret.Buffer the caller must Close; seed is not modified.
func DeriveProtectionKey(seed []byte) (*secret.Buffer, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidRequest)
	}
	saltInput := make([]byte, 0, len(hkdfSaltLabel)+len(seed))
	saltInput = append(append(saltInput, hkdfSaltLabel...), seed...)
	salt := sha256.Sum256(saltInput)
	secret.Zero(saltInput)

	reader := hkdf.New(sha256.New, seed, salt[:], hkdfInfoProtection)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("custodian: HKDF derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// seal encrypts plaintext with XChaCha20-Poly1305 under a fresh random
// 24-byte nonce.
func seal(key *secret.Buffer, random io.Reader, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("custodian: creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, nil, fmt.Errorf("custodian: generating nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aeadAdditionalData), nonce, nil
}

// open reverses seal. Any authentication failure is ErrDecryptionFailed.
func open(key *secret.Buffer, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrInvalidRequest, len(nonce), chacha20poly1305.NonceSizeX)
	}
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("custodian: creating XChaCha20-Poly1305 cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aeadAdditionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

var defaultRandom io.Reader = rand.Reader
