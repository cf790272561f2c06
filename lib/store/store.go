// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Record keys. Each names one whole record; there is no partial update.
const (
	KeyCredential          = "credential"
	KeyArchive             = "archive"
	KeyIdentity            = "identity"
	KeyDelegationsCreated  = "delegations/created"
	KeyDelegationsReceived = "delegations/received"
	KeyRevocationCache     = "revocation-cache"
)

// ErrNotFound is returned by Get when no record exists under the key.
var ErrNotFound = errors.New("store: record not found")

// Store is durable storage for opaque records.
//
// Read-modify-write sequences built on Get and Set are not atomic.
// Two processes updating the same record concurrently can lose one
// update. Callers accept this; the store makes no attempt to detect it.
type Store interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the record stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the record under key. Removing a missing key is
	// not an error.
	Remove(ctx context.Context, key string) error
}

// GetJSON decodes the JSON record under key into v. It reports false,
// with a nil error, when no record exists.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
