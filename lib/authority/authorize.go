// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"

	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// Authorize checks that the received delegation id permits action on
// resource right now. It fails with a *DelegationError wrapping
// ErrUnknownDelegation, ErrDelegationExpired, ErrCapabilityMissing,
// ErrDelegationRevoked, or ErrRevocationCheckFailed. A revocation
// status that cannot be established is a refusal.
//
// For a signed chain every delegation in it is checked for revocation,
// so revoking an upstream grant cuts off everything derived from it.
func (a *Authority) Authorize(ctx context.Context, delegationID, resource, action string) error {
	required := &ucan.Capability{With: resource, Can: action}
	held, found, err := store.FindDelegation(ctx, a.store, store.KeyDelegationsReceived, delegationID)
	if err != nil {
		return err
	}
	if !found {
		return delegationError(delegationID, required, ErrUnknownDelegation)
	}
	if held.Revoked {
		return delegationError(delegationID, required, ErrDelegationRevoked)
	}
	if !held.ExpiresAt.IsZero() && !a.clock.Now().Before(held.ExpiresAt) {
		return delegationError(delegationID, required, ErrDelegationExpired)
	}
	if !ucan.Allows(grantedCapabilities(held.Capabilities), resource, action) {
		return delegationError(delegationID, required, ErrCapabilityMissing)
	}

	ids := []string{delegationID}
	if chain, err := signedChain(held); err == nil {
		ids = ids[:0]
		for _, d := range chain.Delegations() {
			ids = append(ids, d.CID.String())
		}
	}
	for _, id := range ids {
		revoked, err := a.revocations.IsRevoked(ctx, id)
		if err != nil {
			return delegationError(delegationID, required, err)
		}
		if revoked {
			if id != delegationID {
				a.logger.Info("delegation cut off by revoked proof", "id", delegationID, "proof", id)
			}
			return delegationError(delegationID, required, ErrDelegationRevoked)
		}
	}
	return nil
}
