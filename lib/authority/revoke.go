// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// Revoke asks the remote authority to revoke a delegation this identity
// created or received. The custodian signs a revoke invocation with the
// delegation's chain attached as proof of standing. On success the
// local record is marked revoked and the cached status dropped, so the
// next check asks the authority.
func (a *Authority) Revoke(ctx context.Context, delegationID string) (*revocation.Record, error) {
	target, lists, err := a.findHeld(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	chain, err := signedChain(target)
	if err != nil {
		return nil, delegationError(delegationID, nil, err)
	}
	identity, err := a.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: revoking %s: %w", delegationID, err)
	}
	audience := a.remoteIdentity
	if audience == "" {
		audience = identity
	}

	signer, err := a.custodian.Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: revoking %s: %w", delegationID, err)
	}
	invocation, err := ucan.NewRevocation(signer, identity, audience, chain, a.clock.Now())
	if err != nil {
		return nil, delegationError(delegationID, nil, err)
	}
	record, err := a.remote.Revoke(ctx, invocation)
	if err != nil {
		return nil, delegationError(delegationID, nil, err)
	}

	for _, key := range lists {
		err := store.UpdateDelegation(ctx, a.store, key, delegationID, func(info *store.DelegationInfo) {
			info.Revoked = true
			info.RevokedAt = record.RevokedAt
			info.RevokedBy = record.RevokedBy
		})
		if err != nil {
			return record, fmt.Errorf("authority: marking %s revoked: %w", delegationID, err)
		}
	}
	if err := a.revocations.Invalidate(ctx, delegationID); err != nil {
		return record, fmt.Errorf("authority: invalidating cached status of %s: %w", delegationID, err)
	}
	a.logger.Info("delegation revoked", "id", delegationID, "by", record.RevokedBy)
	return record, nil
}

// findHeld returns the delegation and the lists it appears in.
func (a *Authority) findHeld(ctx context.Context, delegationID string) (store.DelegationInfo, []string, error) {
	var (
		held  store.DelegationInfo
		lists []string
	)
	for _, key := range []string{store.KeyDelegationsCreated, store.KeyDelegationsReceived} {
		info, found, err := store.FindDelegation(ctx, a.store, key, delegationID)
		if err != nil {
			return held, nil, err
		}
		if found {
			held = info
			lists = append(lists, key)
		}
	}
	if lists == nil {
		return held, nil, delegationError(delegationID, nil, ErrUnknownDelegation)
	}
	return held, lists, nil
}
