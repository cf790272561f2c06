// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/secret"
)

// ErrCorruptArchive is returned when decrypted bytes do not decode to a
// well-formed KeyPairArchive. Decryption itself succeeded, so the seed
// was right; the plaintext is damaged or was written by something else.
var ErrCorruptArchive = errors.New("archive: corrupt key archive")

// KeyPairArchive is the portable form of a signing keypair: the
// identity it belongs to and the private key bytes for that identity.
// It only exists in plaintext inside the custodian and briefly while
// being sealed or opened.
type KeyPairArchive struct {
	// ID is the did:key of the primary identity.
	ID string `cbor:"id"`

	// Keys maps a did:key to its private key: the 64-byte Ed25519
	// private key (seed followed by public key), or the 32-byte P-256
	// scalar.
	Keys map[string][]byte `cbor:"keys"`
}

// Identities returns the DIDs in the archive in sorted order.
func (a *KeyPairArchive) Identities() []string {
	return slices.Sorted(maps.Keys(a.Keys))
}

// Zero overwrites every private key in the archive.
func (a *KeyPairArchive) Zero() {
	for _, key := range a.Keys {
		secret.Zero(key)
	}
}

// Validate checks the archive's shape: a did:key id that has an entry
// in a non-empty keys map, and every key non-empty.
func (a *KeyPairArchive) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrCorruptArchive)
	}
	if len(a.Keys) == 0 {
		return fmt.Errorf("%w: no keys", ErrCorruptArchive)
	}
	if _, ok := a.Keys[a.ID]; !ok {
		return fmt.Errorf("%w: id %s has no key", ErrCorruptArchive, a.ID)
	}
	for identity, key := range a.Keys {
		if _, err := did.Parse(identity); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		if len(key) == 0 {
			return fmt.Errorf("%w: empty key for %s", ErrCorruptArchive, identity)
		}
	}
	return nil
}

// Marshal serializes the archive with deterministic CBOR: keys sorted,
// private keys as byte strings. Callers zero the result after use.
func Marshal(a *KeyPairArchive) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return codec.Marshal(a)
}

// Unmarshal decodes and validates an archive. Any decode or shape
// failure is ErrCorruptArchive.
func Unmarshal(data []byte) (*KeyPairArchive, error) {
	var a KeyPairArchive
	if err := codec.UnmarshalStrict(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	if err := a.Validate(); err != nil {
		a.Zero()
		return nil, err
	}
	return &a, nil
}
