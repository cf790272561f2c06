// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// ImportDelegation parses a proof string in any supported format,
// checks that it is addressed to the local identity and not already
// held, and records it in the received list.
//
// Signed formats have their whole chain verified, including that every
// hop only narrows its proofs' authority. A delegation addressed to
// anyone else is an *AudienceMismatchError and is never recorded.
func (a *Authority) ImportDelegation(ctx context.Context, proof string) (*store.DelegationInfo, error) {
	proof = strings.TrimSpace(proof)
	parsed, err := ucan.ParseProof(proof)
	if err != nil {
		return nil, fmt.Errorf("authority: importing delegation: %w", err)
	}
	id := parsed.ID()
	if chain := ucan.ChainOf(parsed); chain != nil {
		if err := chain.Validate(); err != nil {
			return nil, delegationError(id, nil, err)
		}
	}

	identity, err := a.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: importing delegation: %w", err)
	}
	if parsed.Audience() != identity {
		return nil, &AudienceMismatchError{DelegationID: id, Expected: identity, Actual: parsed.Audience()}
	}

	if _, found, err := store.FindDelegation(ctx, a.store, store.KeyDelegationsReceived, id); err != nil {
		return nil, err
	} else if found {
		return nil, delegationError(id, nil, ErrDuplicateDelegation)
	}

	received := store.DelegationInfo{
		ID:           id,
		Issuer:       parsed.Issuer(),
		Audience:     parsed.Audience(),
		Capabilities: storedCapabilities(parsed.Capabilities()),
		CreatedAt:    a.clock.Now().UTC(),
		ExpiresAt:    parsed.ExpiresAt(),
		Proof:        proof,
		Format:       string(parsed.Format()),
	}
	if err := store.AppendDelegation(ctx, a.store, store.KeyDelegationsReceived, received); err != nil {
		return nil, fmt.Errorf("authority: recording delegation %s: %w", id, err)
	}

	if parsed.Format() == ucan.FormatLegacy {
		a.logger.Warn("imported unsigned legacy delegation", "id", id, "issuer", received.Issuer)
	} else {
		a.logger.Info("delegation imported", "id", id, "issuer", received.Issuer, "format", received.Format)
	}
	return &received, nil
}
