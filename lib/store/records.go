// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"
)

// CredentialRecord is what survives of a hardware credential between
// sessions. The seed is deliberately absent: it is re-derived by a
// fresh authentication every time it is needed.
type CredentialRecord struct {
	CredentialID    string `json:"credentialId"`
	RawCredentialID []byte `json:"rawCredentialId"`
	PublicKey       []byte `json:"publicKey"`
	PRFInput        []byte `json:"prfInput,omitempty"`
	PRFSource       string `json:"prfSource"`
}

// IdentityRecord is the public half of the signing keypair.
type IdentityRecord struct {
	Algorithm string `json:"algorithm"`
	PublicKey []byte `json:"publicKey"`
	Identity  string `json:"identity"`
}

// Capability is a (resource, action) grant as stored in a delegation
// record.
type Capability struct {
	With string `json:"with"`
	Can  string `json:"can"`
}

// DelegationInfo is the local record of a delegation this identity
// created or received.
type DelegationInfo struct {
	ID           string       `json:"id"`
	Issuer       string       `json:"issuer"`
	Audience     string       `json:"audience"`
	Capabilities []Capability `json:"capabilities"`
	CreatedAt    time.Time    `json:"createdAt"`
	// ExpiresAt is the zero time for delegations that never expire.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	// Proof is the encoded delegation exactly as it was created or
	// imported.
	Proof string `json:"proof"`
	// Format records which wire format an imported delegation arrived
	// in. Empty for created delegations.
	Format    string    `json:"format,omitempty"`
	Revoked   bool      `json:"revoked,omitempty"`
	RevokedAt time.Time `json:"revokedAt,omitzero"`
	RevokedBy string    `json:"revokedBy,omitempty"`
}

// Delegations returns the delegation list stored under key, which must
// be KeyDelegationsCreated or KeyDelegationsReceived. A missing record
// is an empty list.
func Delegations(ctx context.Context, s Store, key string) ([]DelegationInfo, error) {
	var list []DelegationInfo
	if _, err := GetJSON(ctx, s, key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FindDelegation returns the delegation with the given id from the list
// under key.
func FindDelegation(ctx context.Context, s Store, key, id string) (DelegationInfo, bool, error) {
	list, err := Delegations(ctx, s, key)
	if err != nil {
		return DelegationInfo{}, false, err
	}
	for _, info := range list {
		if info.ID == id {
			return info, true, nil
		}
	}
	return DelegationInfo{}, false, nil
}

// AppendDelegation adds info to the list under key.
func AppendDelegation(ctx context.Context, s Store, key string, info DelegationInfo) error {
	list, err := Delegations(ctx, s, key)
	if err != nil {
		return err
	}
	return SetJSON(ctx, s, key, append(list, info))
}

// UpdateDelegation applies update to the entry with the given id in the
// list under key and writes the list back.
func UpdateDelegation(ctx context.Context, s Store, key, id string, update func(*DelegationInfo)) error {
	list, err := Delegations(ctx, s, key)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			update(&list[i])
			return SetJSON(ctx, s, key, list)
		}
	}
	return fmt.Errorf("store: delegation %s not in %s: %w", id, key, ErrNotFound)
}
