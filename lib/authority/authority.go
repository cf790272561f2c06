// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/veraison/go-cose"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/custodian"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// Custodian is the part of a custodian handle the authority signs
// through.
type Custodian interface {
	Signer(ctx context.Context) (cose.Signer, error)
	Status(ctx context.Context) (*custodian.StatusResult, error)
}

// Config configures an Authority.
type Config struct {
	// Custodian holds the local signing identity.
	Custodian Custodian

	// Store holds the created and received delegation lists.
	Store store.Store

	// Revocations answers revocation status for Authorize and
	// IsRevoked.
	Revocations *revocation.Cache

	// Remote accepts revoke invocations.
	Remote revocation.Authority

	// RemoteIdentity is the DID revoke invocations are addressed to.
	// Empty addresses them to the local identity.
	RemoteIdentity string

	// Encoding is the multibase for created proofs: multibase.Base64
	// (the default) or multibase.Base64url.
	Encoding multibase.Encoding

	// Random supplies delegation nonces. Nil means crypto/rand.
	Random io.Reader

	Clock  clock.Clock
	Logger *slog.Logger
}

// Authority creates, imports, checks, and revokes delegations for the
// identity held by one custodian.
type Authority struct {
	custodian      Custodian
	store          store.Store
	revocations    *revocation.Cache
	remote         revocation.Authority
	remoteIdentity string
	encoding       multibase.Encoding
	random         io.Reader
	clock          clock.Clock
	logger         *slog.Logger
}

// New creates an Authority.
func New(config Config) (*Authority, error) {
	if config.Custodian == nil || config.Store == nil || config.Revocations == nil || config.Remote == nil {
		return nil, fmt.Errorf("authority: custodian, store, revocation cache, and remote authority are required")
	}
	if config.Encoding == 0 {
		config.Encoding = multibase.Base64
	}
	if config.Encoding != multibase.Base64 && config.Encoding != multibase.Base64url {
		return nil, fmt.Errorf("authority: unsupported proof encoding %q", rune(config.Encoding))
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Authority{
		custodian:      config.Custodian,
		store:          config.Store,
		revocations:    config.Revocations,
		remote:         config.Remote,
		remoteIdentity: config.RemoteIdentity,
		encoding:       config.Encoding,
		random:         config.Random,
		clock:          config.Clock,
		logger:         config.Logger,
	}, nil
}

// Identity returns the DID of the custodian's loaded keypair.
func (a *Authority) Identity(ctx context.Context) (string, error) {
	return identityOf(ctx, a.custodian)
}

func identityOf(ctx context.Context, c Custodian) (string, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return "", err
	}
	if status.Identity == "" {
		return "", custodian.ErrKeyNotLoaded
	}
	return status.Identity, nil
}

// Created lists the delegations this identity issued.
func (a *Authority) Created(ctx context.Context) ([]store.DelegationInfo, error) {
	return store.Delegations(ctx, a.store, store.KeyDelegationsCreated)
}

// Received lists the delegations this identity imported.
func (a *Authority) Received(ctx context.Context) ([]store.DelegationInfo, error) {
	return store.Delegations(ctx, a.store, store.KeyDelegationsReceived)
}

// IsRevoked reports the revocation status of a delegation through the
// cache. A failed check is ErrRevocationCheckFailed.
func (a *Authority) IsRevoked(ctx context.Context, delegationID string) (bool, error) {
	return a.revocations.IsRevoked(ctx, delegationID)
}

// info builds the local record for a delegation chain.
func info(chain *ucan.Chain, proof string, createdAt time.Time) store.DelegationInfo {
	root := chain.Root
	return store.DelegationInfo{
		ID:           root.CID.String(),
		Issuer:       root.Issuer,
		Audience:     root.Audience,
		Capabilities: storedCapabilities(root.Capabilities),
		CreatedAt:    createdAt.UTC(),
		ExpiresAt:    root.ExpiresAt(),
		Proof:        proof,
	}
}

func storedCapabilities(capabilities []ucan.Capability) []store.Capability {
	stored := make([]store.Capability, len(capabilities))
	for i, c := range capabilities {
		stored[i] = store.Capability{With: c.With, Can: c.Can}
	}
	return stored
}

func grantedCapabilities(stored []store.Capability) []ucan.Capability {
	capabilities := make([]ucan.Capability, len(stored))
	for i, c := range stored {
		capabilities[i] = ucan.Capability{With: c.With, Can: c.Can}
	}
	return capabilities
}

// signedChain parses a stored proof string, requiring a signed format.
func signedChain(info store.DelegationInfo) (*ucan.Chain, error) {
	parsed, err := ucan.ParseProof(info.Proof)
	if err != nil {
		return nil, err
	}
	chain := ucan.ChainOf(parsed)
	if chain == nil {
		return nil, ErrUnsigned
	}
	return chain, nil
}

func proofIDs(chains []*ucan.Chain) []cid.Cid {
	ids := make([]cid.Cid, len(chains))
	for i, chain := range chains {
		ids[i] = chain.Root.CID
	}
	return ids
}

func checkAudience(audience string) error {
	if !strings.HasPrefix(audience, "did:") {
		return fmt.Errorf("authority: audience %q is not a DID", audience)
	}
	return nil
}
