// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// CreateRequest describes a delegation to issue.
type CreateRequest struct {
	// Audience is the DID receiving the capabilities.
	Audience string

	// Resource is the resource the actions apply to. Empty means the
	// local identity itself, which it owns.
	Resource string

	// Actions become one capability each on Resource.
	Actions []string

	// TTL sets the expiration to now + TTL. Zero means no expiration
	// of its own; a chained delegation still ends with its proof.
	TTL time.Duration

	// Proof names the received delegation to derive authority from.
	// Empty picks the first usable one. Ignored for resources the
	// local identity owns.
	Proof string
}

// CreateDelegation issues a delegation signed by the custodian's
// identity, records it in the created list, and returns the record,
// whose Proof is the encoded delegation to hand to the audience.
//
// When Resource is the local identity the delegation is direct.
// Otherwise a received delegation covering every requested capability
// is attached as proof; if none exists the error is
// ErrCapabilityMissing.
func (a *Authority) CreateDelegation(ctx context.Context, request CreateRequest) (*store.DelegationInfo, error) {
	issuer, err := a.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: creating delegation: %w", err)
	}
	capabilities, err := requestCapabilities(issuer, request)
	if err != nil {
		return nil, err
	}
	proofs, err := a.proofsFor(ctx, issuer, capabilities, request.Proof)
	if err != nil {
		return nil, err
	}

	chain, err := a.issue(ctx, a.custodian, issuer, request.Audience, capabilities, request.TTL, proofs)
	if err != nil {
		return nil, err
	}
	created, err := a.record(ctx, chain)
	if err != nil {
		return nil, err
	}
	a.logger.Info("delegation created",
		"id", created.ID,
		"audience", created.Audience,
		"capabilities", len(created.Capabilities),
		"chained", len(proofs) > 0,
	)
	return created, nil
}

// BridgeRequest describes a two-hop delegation through a second local
// identity, typically one with a different key algorithm.
type BridgeRequest struct {
	// Via holds the intermediate identity.
	Via Custodian

	Audience string
	Resource string
	Actions  []string
	TTL      time.Duration
	Proof    string
}

// Bridge issues the capabilities from the local identity to the Via
// identity, then from Via to Audience with the first delegation as its
// proof. No key is converted between algorithms; the chain carries one
// signature from each. Both delegations are recorded; the returned
// record is the final one.
func (a *Authority) Bridge(ctx context.Context, request BridgeRequest) (*store.DelegationInfo, error) {
	if request.Via == nil {
		return nil, fmt.Errorf("authority: bridge needs an intermediate custodian")
	}
	issuer, err := a.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: bridging: %w", err)
	}
	via, err := identityOf(ctx, request.Via)
	if err != nil {
		return nil, fmt.Errorf("authority: bridging: intermediate identity: %w", err)
	}
	if via == issuer {
		return nil, fmt.Errorf("authority: bridging: intermediate identity is the issuer")
	}
	capabilities, err := requestCapabilities(issuer, CreateRequest{
		Audience: request.Audience,
		Resource: request.Resource,
		Actions:  request.Actions,
	})
	if err != nil {
		return nil, err
	}
	proofs, err := a.proofsFor(ctx, issuer, capabilities, request.Proof)
	if err != nil {
		return nil, err
	}

	first, err := a.issue(ctx, a.custodian, issuer, via, capabilities, request.TTL, proofs)
	if err != nil {
		return nil, err
	}
	if _, err := a.record(ctx, first); err != nil {
		return nil, err
	}
	final, err := a.issue(ctx, request.Via, via, request.Audience, capabilities, request.TTL, []*ucan.Chain{first})
	if err != nil {
		return nil, err
	}
	created, err := a.record(ctx, final)
	if err != nil {
		return nil, err
	}
	a.logger.Info("bridged delegation created",
		"id", created.ID,
		"via", via,
		"audience", created.Audience,
	)
	return created, nil
}

func requestCapabilities(issuer string, request CreateRequest) ([]ucan.Capability, error) {
	if err := checkAudience(request.Audience); err != nil {
		return nil, err
	}
	if len(request.Actions) == 0 {
		return nil, fmt.Errorf("authority: no actions requested")
	}
	if request.TTL < 0 {
		return nil, fmt.Errorf("authority: negative TTL %s", request.TTL)
	}
	resource := request.Resource
	if resource == "" {
		resource = issuer
	}
	capabilities := make([]ucan.Capability, 0, len(request.Actions))
	for _, action := range request.Actions {
		if action == "" {
			return nil, fmt.Errorf("authority: empty action")
		}
		capabilities = append(capabilities, ucan.Capability{With: resource, Can: action})
	}
	return capabilities, nil
}

// proofsFor returns the chains the issuer's authority over capabilities
// derives from: none for its own resources, otherwise one received
// delegation covering all of them.
func (a *Authority) proofsFor(ctx context.Context, issuer string, capabilities []ucan.Capability, proofID string) ([]*ucan.Chain, error) {
	owned := true
	for _, c := range capabilities {
		if c.With != issuer {
			owned = false
			break
		}
	}
	if owned {
		return nil, nil
	}

	received, err := a.Received(ctx)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	var lastMissing ucan.Capability
	for _, candidate := range received {
		if proofID != "" && candidate.ID != proofID {
			continue
		}
		if candidate.Revoked || candidate.Audience != issuer {
			continue
		}
		if !candidate.ExpiresAt.IsZero() && !now.Before(candidate.ExpiresAt) {
			continue
		}
		missing, ok := ucan.AllCovered(grantedCapabilities(candidate.Capabilities), capabilities)
		if !ok {
			lastMissing = missing
			continue
		}
		chain, err := signedChain(candidate)
		if err != nil {
			if proofID != "" {
				return nil, delegationError(candidate.ID, nil, err)
			}
			continue
		}
		return []*ucan.Chain{chain}, nil
	}

	if proofID != "" {
		if lastMissing.Can != "" {
			return nil, delegationError(proofID, &lastMissing, ErrCapabilityMissing)
		}
		return nil, delegationError(proofID, nil, ErrUnknownDelegation)
	}
	if lastMissing.Can == "" {
		lastMissing = capabilities[0]
	}
	return nil, delegationError("(none held)", &lastMissing, ErrCapabilityMissing)
}

// issue signs one delegation through c and returns it chained to its
// proofs. The expiration never exceeds a proof's.
func (a *Authority) issue(ctx context.Context, c Custodian, issuer, audience string, capabilities []ucan.Capability, ttl time.Duration, proofs []*ucan.Chain) (*ucan.Chain, error) {
	now := a.clock.Now()
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}
	for _, proof := range proofs {
		limit := proof.Root.ExpiresAt()
		if !limit.IsZero() && (expiration.IsZero() || expiration.After(limit)) {
			expiration = limit
		}
	}

	signer, err := c.Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("authority: signing as %s: %w", issuer, err)
	}
	delegation, err := ucan.Issue(signer, ucan.Params{
		Issuer:       issuer,
		Audience:     audience,
		Capabilities: capabilities,
		Expiration:   expiration,
		Proofs:       proofIDs(proofs),
		Random:       a.random,
	})
	if err != nil {
		return nil, err
	}
	return ucan.NewChain(delegation, proofs...), nil
}

// record encodes chain and appends it to the created list.
func (a *Authority) record(ctx context.Context, chain *ucan.Chain) (*store.DelegationInfo, error) {
	proof, err := ucan.Encode(chain, a.encoding)
	if err != nil {
		return nil, err
	}
	created := info(chain, proof, a.clock.Now())
	if err := store.AppendDelegation(ctx, a.store, store.KeyDelegationsCreated, created); err != nil {
		return nil, fmt.Errorf("authority: recording delegation %s: %w", created.ID, err)
	}
	return &created, nil
}
