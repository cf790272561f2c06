// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRevocationCheckFailed is returned when the revocation status
	// of a delegation could not be established. Callers must treat it
	// as a refusal, never as "not revoked".
	ErrRevocationCheckFailed = errors.New("revocation: status check failed")

	// ErrRejected is returned when the authority refuses a revoke
	// invocation.
	ErrRejected = errors.New("revocation: invocation rejected")
)

// Record is the authority's record of a revoked delegation.
type Record struct {
	DelegationID string    `json:"delegationId"`
	RevokedBy    string    `json:"revokedBy"`
	RevokedAt    time.Time `json:"revokedAt"`
}

// Authority is the remote service that stores revocations.
type Authority interface {
	// Status reports whether the delegation with the given CID has
	// been revoked.
	Status(ctx context.Context, delegationID string) (bool, error)

	// Revoke submits a signed revoke invocation archive and returns
	// the resulting record.
	Revoke(ctx context.Context, invocation []byte) (*Record, error)
}
