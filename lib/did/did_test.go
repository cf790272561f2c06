// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package did

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func TestFormatEd25519KnownPrefix(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	identity, err := Format(Ed25519, publicKey)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	// 0xed 0x01 varint prefix + 32 bytes always begins z6Mk in base58btc.
	if !strings.HasPrefix(identity, "did:key:z6Mk") {
		t.Errorf("identity = %q, want did:key:z6Mk prefix", identity)
	}

	parsed, err := Parse(identity)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Algorithm != Ed25519 {
		t.Errorf("Algorithm = %q, want %q", parsed.Algorithm, Ed25519)
	}
	if !bytes.Equal(parsed.Bytes, publicKey) {
		t.Errorf("Bytes = %x, want %x", parsed.Bytes, publicKey)
	}
	if parsed.String() != identity {
		t.Errorf("String = %q, want %q", parsed.String(), identity)
	}
}

func TestFormatP256CompressesKey(t *testing.T) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	uncompressed, err := privateKey.PublicKey.Bytes()
	if err != nil {
		t.Fatalf("PublicKey.Bytes: %v", err)
	}
	compressed := elliptic.MarshalCompressed(elliptic.P256(), privateKey.X, privateKey.Y)

	fromUncompressed, err := Format(P256, uncompressed)
	if err != nil {
		t.Fatalf("Format(uncompressed): %v", err)
	}
	fromCompressed, err := Format(P256, compressed)
	if err != nil {
		t.Fatalf("Format(compressed): %v", err)
	}
	fromCrypto, err := FromCryptoKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("FromCryptoKey: %v", err)
	}
	if fromUncompressed != fromCompressed || fromCompressed != fromCrypto {
		t.Errorf("P-256 encodings disagree: %q, %q, %q", fromUncompressed, fromCompressed, fromCrypto)
	}
	// 0x1200 varint prefix + 33 bytes always begins zDn in base58btc.
	if !strings.HasPrefix(fromCompressed, "did:key:zDn") {
		t.Errorf("identity = %q, want did:key:zDn prefix", fromCompressed)
	}

	parsed, err := Parse(fromCompressed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	key, err := parsed.CryptoKey()
	if err != nil {
		t.Fatalf("CryptoKey: %v", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("CryptoKey returned %T, want *ecdsa.PublicKey", key)
	}
	if !ecdsaKey.Equal(&privateKey.PublicKey) {
		t.Error("round-tripped P-256 key does not equal the original")
	}
}

func TestParseRejects(t *testing.T) {
	publicKey, _, _ := ed25519.GenerateKey(rand.Reader)
	valid, _ := Format(Ed25519, publicKey)

	tests := []struct {
		name  string
		input string
	}{
		{"wrong method", "did:web:example.com"},
		{"not base58btc", strings.Replace(valid, "did:key:z", "did:key:m", 1)},
		{"bad base58", "did:key:z0OIl"},
		{"truncated key", valid[:len(valid)-4]},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.input)
			if !errors.Is(err, ErrInvalidDID) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidDID", test.input, err)
			}
		})
	}
}

func TestFormatRejectsWrongLength(t *testing.T) {
	if _, err := Format(Ed25519, make([]byte, 31)); err == nil {
		t.Error("Format accepted a 31-byte Ed25519 key")
	}
	if _, err := Format(P256, make([]byte, 40)); err == nil {
		t.Error("Format accepted a 40-byte P-256 key")
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{"": Ed25519, "Ed25519": Ed25519, "p256": P256, "ES256": P256}
	for input, want := range tests {
		got, err := ParseAlgorithm(input)
		if err != nil {
			t.Errorf("ParseAlgorithm(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAlgorithm(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseAlgorithm("rsa"); err == nil {
		t.Error("ParseAlgorithm(rsa) succeeded")
	}
}
