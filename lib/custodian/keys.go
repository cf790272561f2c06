// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"slices"

	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/secret"
)

// p256ScalarSize is the length of a P-256 private scalar and of each
// half of a raw r||s signature.
const p256ScalarSize = 32

// keypair is the signing key held by the custodian goroutine. private
// is the Ed25519 private key (64 bytes) or the P-256 scalar (32 bytes).
type keypair struct {
	algorithm did.Algorithm
	private   *secret.Buffer
	publicKey []byte
	identity  string
}

func generateKeypair(algorithm did.Algorithm, random io.Reader) (*keypair, error) {
	var (
		privateBytes []byte
		publicKey    []byte
	)
	switch algorithm {
	case did.Ed25519:
		public, private, err := ed25519.GenerateKey(random)
		if err != nil {
			return nil, fmt.Errorf("custodian: generating Ed25519 key: %w", err)
		}
		privateBytes, publicKey = private, public
	case did.P256:
		private, err := ecdsa.GenerateKey(elliptic.P256(), random)
		if err != nil {
			return nil, fmt.Errorf("custodian: generating P-256 key: %w", err)
		}
		privateBytes, err = private.Bytes()
		if err != nil {
			return nil, fmt.Errorf("custodian: encoding P-256 key: %w", err)
		}
		publicKey = elliptic.MarshalCompressed(elliptic.P256(), private.X, private.Y)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidRequest, algorithm)
	}
	return newKeypair(algorithm, privateBytes, publicKey)
}

// keypairFromArchive loads the primary identity's key from a, checking
// that the private key actually belongs to that identity.
func keypairFromArchive(a *archive.KeyPairArchive) (*keypair, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parsed, err := did.Parse(a.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	privateBytes := slices.Clone(a.Keys[a.ID])

	var publicKey []byte
	switch parsed.Algorithm {
	case did.Ed25519:
		if len(privateBytes) != ed25519.PrivateKeySize {
			secret.Zero(privateBytes)
			return nil, fmt.Errorf("%w: Ed25519 key is %d bytes, want %d", ErrInvalidRequest, len(privateBytes), ed25519.PrivateKeySize)
		}
		publicKey = slices.Clone(ed25519.PrivateKey(privateBytes).Public().(ed25519.PublicKey))
	case did.P256:
		private, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), privateBytes)
		if err != nil {
			secret.Zero(privateBytes)
			return nil, fmt.Errorf("%w: P-256 key: %v", ErrInvalidRequest, err)
		}
		publicKey = elliptic.MarshalCompressed(elliptic.P256(), private.X, private.Y)
	}
	if !slices.Equal(publicKey, parsed.Bytes) {
		secret.Zero(privateBytes)
		return nil, fmt.Errorf("%w: private key does not match identity %s", ErrInvalidRequest, a.ID)
	}
	return newKeypair(parsed.Algorithm, privateBytes, publicKey)
}

// newKeypair moves privateBytes into a secret.Buffer (zeroing them).
func newKeypair(algorithm did.Algorithm, privateBytes, publicKey []byte) (*keypair, error) {
	identity, err := did.Format(algorithm, publicKey)
	if err != nil {
		secret.Zero(privateBytes)
		return nil, err
	}
	private, err := secret.NewFromBytes(privateBytes)
	if err != nil {
		return nil, fmt.Errorf("custodian: protecting private key: %w", err)
	}
	return &keypair{
		algorithm: algorithm,
		private:   private,
		publicKey: slices.Clone(publicKey),
		identity:  identity,
	}, nil
}

// sign returns an Ed25519 signature over data, or for P-256 an ECDSA
// signature over SHA-256(data) in fixed-width r||s form (the COSE ES256
// encoding).
func (k *keypair) sign(random io.Reader, data []byte) ([]byte, error) {
	switch k.algorithm {
	case did.Ed25519:
		// crypto/ed25519 caches expanded keys through weak pointers,
		// which must point into the Go heap, not the locked mapping.
		private := slices.Clone(k.private.Bytes())
		defer secret.Zero(private)
		return ed25519.Sign(ed25519.PrivateKey(private), data), nil
	case did.P256:
		private, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), k.private.Bytes())
		if err != nil {
			return nil, fmt.Errorf("custodian: loading P-256 key: %w", err)
		}
		digest := sha256.Sum256(data)
		r, s, err := ecdsa.Sign(random, private, digest[:])
		if err != nil {
			return nil, fmt.Errorf("custodian: ECDSA signing failed: %w", err)
		}
		signature := make([]byte, 2*p256ScalarSize)
		r.FillBytes(signature[:p256ScalarSize])
		s.FillBytes(signature[p256ScalarSize:])
		return signature, nil
	}
	return nil, fmt.Errorf("custodian: unsupported algorithm %q", k.algorithm)
}

func (k *keypair) verify(data, signature []byte) bool {
	switch k.algorithm {
	case did.Ed25519:
		return ed25519.Verify(ed25519.PublicKey(k.publicKey), data, signature)
	case did.P256:
		if len(signature) != 2*p256ScalarSize {
			return false
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), k.publicKey)
		public := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		digest := sha256.Sum256(data)
		r := new(big.Int).SetBytes(signature[:p256ScalarSize])
		s := new(big.Int).SetBytes(signature[p256ScalarSize:])
		return ecdsa.Verify(public, digest[:], r, s)
	}
	return false
}

// toArchive copies the private key out for the caller to seal.
func (k *keypair) toArchive() *archive.KeyPairArchive {
	return &archive.KeyPairArchive{
		ID:   k.identity,
		Keys: map[string][]byte{k.identity: slices.Clone(k.private.Bytes())},
	}
}

func (k *keypair) result() KeypairResult {
	return KeypairResult{
		Algorithm: string(k.algorithm),
		PublicKey: slices.Clone(k.publicKey),
		Identity:  k.identity,
	}
}

func (k *keypair) close() {
	k.private.Close()
}
