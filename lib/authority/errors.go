// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/ucan"
)

var (
	// ErrAudienceMismatch matches an *AudienceMismatchError.
	ErrAudienceMismatch = errors.New("authority: delegation audience mismatch")

	// ErrDuplicateDelegation is returned when a delegation with the
	// same id has already been imported.
	ErrDuplicateDelegation = errors.New("authority: delegation already imported")

	// ErrCapabilityMissing is returned when no held delegation grants
	// the capability an operation needs.
	ErrCapabilityMissing = errors.New("authority: capability missing")

	// ErrDelegationRevoked is returned for a delegation that has been
	// revoked, locally or at the revocation authority.
	ErrDelegationRevoked = errors.New("authority: delegation revoked")

	// ErrDelegationExpired is returned for a delegation past its
	// expiration.
	ErrDelegationExpired = errors.New("authority: delegation expired")

	// ErrUnknownDelegation is returned for an id not in the local
	// delegation lists.
	ErrUnknownDelegation = errors.New("authority: unknown delegation")

	// ErrUnsigned is returned when a legacy delegation is used where a
	// signed chain is required: as a proof, or as a revocation target.
	ErrUnsigned = errors.New("authority: delegation has no signature")

	// ErrRevocationCheckFailed is revocation.ErrRevocationCheckFailed,
	// surfaced here so callers of this package can match it directly.
	ErrRevocationCheckFailed = revocation.ErrRevocationCheckFailed
)

// AudienceMismatchError reports a delegation addressed to someone else.
type AudienceMismatchError struct {
	DelegationID string
	Expected     string
	Actual       string
}

func (e *AudienceMismatchError) Error() string {
	return fmt.Sprintf("authority: delegation %s is addressed to %s, but this identity is %s", e.DelegationID, e.Actual, e.Expected)
}

func (e *AudienceMismatchError) Is(target error) bool { return target == ErrAudienceMismatch }

// DelegationError attaches the delegation and, where one applies, the
// capability to a failure.
type DelegationError struct {
	DelegationID string

	// Capability is the capability that was required, if the failure
	// concerns one.
	Capability *ucan.Capability

	Err error
}

func (e *DelegationError) Error() string {
	if e.Capability != nil {
		return fmt.Sprintf("delegation %s: %s required: %v", e.DelegationID, e.Capability, e.Err)
	}
	return fmt.Sprintf("delegation %s: %v", e.DelegationID, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }

func delegationError(id string, capability *ucan.Capability, err error) error {
	return &DelegationError{DelegationID: id, Capability: capability, Err: err}
}
