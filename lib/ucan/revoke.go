// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/veraison/go-cose"
)

// RevokeAbility is the action of a revocation invocation.
const RevokeAbility = "ucan/revoke"

// revokeCaveat is the caveat key naming the revoked delegation.
const revokeCaveat = "ucan"

// ErrInvalidRevocation is returned when a revocation invocation is
// malformed or not authorized to revoke its target.
var ErrInvalidRevocation = errors.New("ucan: invalid revocation")

// Revocation is a decoded revoke invocation: Invocation asks the
// authority to revoke Target, and carries Target's chain as proof.
type Revocation struct {
	Invocation *Delegation
	Target     *Delegation
	Chain      *Chain
}

// NewRevocation signs an invocation from issuer to authority revoking
// target.Root. issuer must be the target's issuer or audience.
func NewRevocation(signer cose.Signer, issuer, authority string, target *Chain, now time.Time) ([]byte, error) {
	if issuer != target.Root.Issuer && issuer != target.Root.Audience {
		return nil, fmt.Errorf("%w: %s is neither issuer nor audience of %s", ErrInvalidRevocation, issuer, target.Root.CID)
	}
	invocation, err := Issue(signer, Params{
		Issuer:   issuer,
		Audience: authority,
		Capabilities: []Capability{{
			With:    issuer,
			Can:     RevokeAbility,
			Caveats: map[string]string{revokeCaveat: target.Root.CID.String()},
		}},
		Expiration: now.Add(5 * time.Minute),
		Proofs:     []cid.Cid{target.Root.CID},
	})
	if err != nil {
		return nil, err
	}
	return NewChain(invocation, target).Archive()
}

// DecodeRevocation extracts and checks a revocation invocation: the
// archive verifies, the invocation names exactly one target that is its
// proof, and the invoker is the target's issuer or audience.
func DecodeRevocation(data []byte, now time.Time) (*Revocation, error) {
	chain, err := ExtractArchive(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRevocation, err)
	}
	invocation := chain.Root
	if invocation.Expired(now) {
		return nil, fmt.Errorf("%w: invocation expired", ErrInvalidRevocation)
	}
	if len(invocation.Capabilities) != 1 || len(invocation.Proofs) != 1 {
		return nil, fmt.Errorf("%w: want one capability and one proof", ErrInvalidRevocation)
	}
	capability := invocation.Capabilities[0]
	if capability.Can != RevokeAbility || capability.With != invocation.Issuer {
		return nil, fmt.Errorf("%w: capability %s is not a revocation by %s", ErrInvalidRevocation, capability, invocation.Issuer)
	}
	targetID, err := cid.Decode(capability.Caveats[revokeCaveat])
	if err != nil {
		return nil, fmt.Errorf("%w: target: %v", ErrInvalidRevocation, err)
	}
	if !targetID.Equals(invocation.Proofs[0]) {
		return nil, fmt.Errorf("%w: target %s is not the attached proof", ErrInvalidRevocation, targetID)
	}
	target, ok := chain.Lookup(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: target %s missing from archive", ErrInvalidRevocation, targetID)
	}
	if invocation.Issuer != target.Issuer && invocation.Issuer != target.Audience {
		return nil, fmt.Errorf("%w: %s may not revoke %s", ErrInvalidRevocation, invocation.Issuer, targetID)
	}
	return &Revocation{
		Invocation: invocation,
		Target:     target,
		Chain:      &Chain{Root: target, blocks: chain.blocks},
	}, nil
}
