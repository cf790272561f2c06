// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package did

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
)

// Prefix is the scheme and method of every identity this package
// produces.
const Prefix = "did:key:"

// Algorithm names a signing algorithm a did:key identity can carry.
type Algorithm string

const (
	Ed25519 Algorithm = "ed25519"
	P256    Algorithm = "p256"
)

// ErrInvalidDID is returned for strings that are not a did:key this
// package understands.
var ErrInvalidDID = errors.New("did: invalid did:key")

// ParseAlgorithm maps a configuration or flag value to an Algorithm.
// The empty string selects Ed25519.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "ed25519", "eddsa":
		return Ed25519, nil
	case "p256", "p-256", "es256", "ecdsa":
		return P256, nil
	}
	return "", fmt.Errorf("did: unknown algorithm %q (want ed25519 or p256)", name)
}

func (a Algorithm) code() (multicodec.Code, error) {
	switch a {
	case Ed25519:
		return multicodec.Ed25519Pub, nil
	case P256:
		return multicodec.P256Pub, nil
	}
	return 0, fmt.Errorf("did: unsupported algorithm %q", a)
}

// PublicKey is the decoded content of a did:key: the algorithm and
// the key bytes in multicodec form (32 raw bytes for Ed25519, the
// 33-byte compressed point for P-256).
type PublicKey struct {
	Algorithm Algorithm
	Bytes     []byte
}

// Format builds the did:key for a public key. For P-256 the key may be
// given compressed (33 bytes) or uncompressed (65 bytes); the DID
// always carries the compressed form.
func Format(algorithm Algorithm, publicKey []byte) (string, error) {
	normalized, err := normalize(algorithm, publicKey)
	if err != nil {
		return "", err
	}
	code, err := algorithm.code()
	if err != nil {
		return "", err
	}
	tagged := append(varint.ToUvarint(uint64(code)), normalized...)
	// "z" is the multibase prefix for base58btc.
	return Prefix + "z" + base58.Encode(tagged), nil
}

// FromCryptoKey builds the did:key for an ed25519.PublicKey or a P-256
// *ecdsa.PublicKey.
func FromCryptoKey(key crypto.PublicKey) (string, error) {
	switch k := key.(type) {
	case ed25519.PublicKey:
		return Format(Ed25519, k)
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("did: unsupported ECDSA curve %s", k.Curve.Params().Name)
		}
		return Format(P256, elliptic.MarshalCompressed(k.Curve, k.X, k.Y))
	}
	return "", fmt.Errorf("did: unsupported public key type %T", key)
}

// Parse decodes a did:key string.
func Parse(identity string) (PublicKey, error) {
	encoded, ok := strings.CutPrefix(identity, Prefix)
	if !ok {
		return PublicKey{}, fmt.Errorf("%w: %q lacks %q prefix", ErrInvalidDID, identity, Prefix)
	}
	encoded, ok = strings.CutPrefix(encoded, "z")
	if !ok {
		return PublicKey{}, fmt.Errorf("%w: %q is not base58btc", ErrInvalidDID, identity)
	}
	tagged, err := base58.Decode(encoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidDID, identity, err)
	}
	code, length, err := varint.FromUvarint(tagged)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %q: bad multicodec prefix: %v", ErrInvalidDID, identity, err)
	}

	var algorithm Algorithm
	switch multicodec.Code(code) {
	case multicodec.Ed25519Pub:
		algorithm = Ed25519
	case multicodec.P256Pub:
		algorithm = P256
	default:
		return PublicKey{}, fmt.Errorf("%w: %q: unsupported key type %s", ErrInvalidDID, identity, multicodec.Code(code))
	}

	keyBytes := tagged[length:]
	if _, err := normalize(algorithm, keyBytes); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidDID, identity, err)
	}
	return PublicKey{Algorithm: algorithm, Bytes: keyBytes}, nil
}

// CryptoKey returns the key as an ed25519.PublicKey or *ecdsa.PublicKey.
func (k PublicKey) CryptoKey() (crypto.PublicKey, error) {
	switch k.Algorithm {
	case Ed25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("did: Ed25519 key is %d bytes, want %d", len(k.Bytes), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(k.Bytes), nil
	case P256:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), k.Bytes)
		if x == nil {
			return nil, fmt.Errorf("did: invalid compressed P-256 point")
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	}
	return nil, fmt.Errorf("did: unsupported algorithm %q", k.Algorithm)
}

// String returns the did:key form of k.
func (k PublicKey) String() string {
	identity, err := Format(k.Algorithm, k.Bytes)
	if err != nil {
		return "did:key:<invalid>"
	}
	return identity
}

func normalize(algorithm Algorithm, publicKey []byte) ([]byte, error) {
	switch algorithm {
	case Ed25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("did: Ed25519 public key is %d bytes, want %d", len(publicKey), ed25519.PublicKeySize)
		}
		return publicKey, nil
	case P256:
		switch len(publicKey) {
		case 33:
			if x, _ := elliptic.UnmarshalCompressed(elliptic.P256(), publicKey); x == nil {
				return nil, fmt.Errorf("did: invalid compressed P-256 point")
			}
			return publicKey, nil
		case 65:
			key, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), publicKey)
			if err != nil {
				return nil, fmt.Errorf("did: invalid P-256 point: %w", err)
			}
			return elliptic.MarshalCompressed(elliptic.P256(), key.X, key.Y), nil
		}
		return nil, fmt.Errorf("did: P-256 public key is %d bytes, want 33 or 65", len(publicKey))
	}
	return nil, fmt.Errorf("did: unsupported algorithm %q", algorithm)
}
