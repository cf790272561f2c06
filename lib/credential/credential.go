// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/store"
)

var (
	// ErrAuthenticationCancelled is returned when the user dismissed
	// or timed out the authenticator prompt.
	ErrAuthenticationCancelled = errors.New("credential: authentication cancelled")

	// ErrUnsupportedPlatform is returned when no authenticator is
	// available on this host.
	ErrUnsupportedPlatform = errors.New("credential: platform authenticator unsupported")
)

// SeedSource records where a seed came from.
type SeedSource string

const (
	// SeedSourcePRF is the output of the authenticator's PRF extension.
	SeedSourcePRF SeedSource = "prf"

	// SeedSourceCredentialID is the raw credential identifier, used
	// when the authenticator does not implement PRF. It is stable but
	// not secret from anyone who has seen the credential id.
	SeedSourceCredentialID SeedSource = "credential-identifier-fallback"
)

// PRFInputSize is the size of the random PRF input generated for a new
// credential.
const PRFInputSize = 32

// Seed is the per-authentication secret the custodian derives its
// protection key from. It must never be persisted. Call Zero as soon as
// it has been handed to the custodian.
type Seed struct {
	Bytes  []byte
	Source SeedSource
}

// Zero overwrites the seed bytes.
func (s *Seed) Zero() {
	secret.Zero(s.Bytes)
	s.Bytes = nil
}

// Info is the result of a create or authenticate ceremony.
type Info struct {
	// CredentialID is RawCredentialID in unpadded base64url, the form
	// WebAuthn uses on the wire.
	CredentialID    string
	RawCredentialID []byte
	PublicKey       []byte
	PRFInput        []byte
	Seed            Seed
}

// Record returns the persistable part of the credential. The seed is
// not part of it.
func (i *Info) Record() store.CredentialRecord {
	return store.CredentialRecord{
		CredentialID:    i.CredentialID,
		RawCredentialID: slices.Clone(i.RawCredentialID),
		PublicKey:       slices.Clone(i.PublicKey),
		PRFInput:        slices.Clone(i.PRFInput),
		PRFSource:       string(i.Seed.Source),
	}
}

// ExtractSeed picks the seed for a ceremony: the PRF output when the
// authenticator produced one, otherwise a copy of the raw credential id.
func ExtractSeed(results *PRFResults, rawCredentialID []byte) Seed {
	if results != nil && len(results.First) > 0 {
		return Seed{Bytes: slices.Clone(results.First), Source: SeedSourcePRF}
	}
	return Seed{Bytes: slices.Clone(rawCredentialID), Source: SeedSourceCredentialID}
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Authenticator performs the ceremonies. Nil means the platform has
	// none, and every operation returns ErrUnsupportedPlatform.
	Authenticator Authenticator

	// RelyingPartyID scopes credentials. Required.
	RelyingPartyID string

	// Random supplies challenges and PRF inputs. Nil uses crypto/rand.
	Random io.Reader

	Logger *slog.Logger
}

// Provider runs credential ceremonies against an Authenticator and
// turns their results into seeds.
type Provider struct {
	authenticator  Authenticator
	relyingPartyID string
	random         io.Reader
	logger         *slog.Logger
}

// NewProvider returns a Provider for cfg.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.RelyingPartyID == "" {
		return nil, fmt.Errorf("credential: RelyingPartyID is required")
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		authenticator:  cfg.Authenticator,
		relyingPartyID: cfg.RelyingPartyID,
		random:         random,
		logger:         logger,
	}, nil
}

// CreateOptions describes the user a new credential is registered for.
type CreateOptions struct {
	UserName    string
	DisplayName string
}

// CreateCredential registers a new credential with a fresh random PRF
// input and returns the seed from the creation ceremony.
func (p *Provider) CreateCredential(ctx context.Context, options CreateOptions) (*Info, error) {
	if p.authenticator == nil {
		return nil, ErrUnsupportedPlatform
	}
	prfInput, err := p.randomBytes(PRFInputSize)
	if err != nil {
		return nil, err
	}
	challenge, err := p.randomBytes(32)
	if err != nil {
		return nil, err
	}
	userID, err := p.randomBytes(16)
	if err != nil {
		return nil, err
	}

	attestation, err := p.authenticator.Create(ctx, CreationRequest{
		RelyingPartyID: p.relyingPartyID,
		UserID:         userID,
		UserName:       options.UserName,
		DisplayName:    options.DisplayName,
		Challenge:      challenge,
		PRFInput:       prfInput,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: create: %w", err)
	}
	if len(attestation.CredentialID) == 0 {
		return nil, fmt.Errorf("credential: create: authenticator returned an empty credential id")
	}

	info := &Info{
		CredentialID:    base64.RawURLEncoding.EncodeToString(attestation.CredentialID),
		RawCredentialID: slices.Clone(attestation.CredentialID),
		PublicKey:       slices.Clone(attestation.PublicKey),
		PRFInput:        prfInput,
		Seed:            ExtractSeed(attestation.PRF, attestation.CredentialID),
	}
	p.logger.Info("credential created",
		"credential_id", info.CredentialID,
		"seed_source", info.Seed.Source,
	)
	return info, nil
}

// Authenticate re-asserts an existing credential with the stored PRF
// input so the authenticator reproduces the same seed. It must be
// called each time a seed is needed.
func (p *Provider) Authenticate(ctx context.Context, credentialID string, storedInput []byte) (*Info, error) {
	if p.authenticator == nil {
		return nil, ErrUnsupportedPlatform
	}
	rawID, err := base64.RawURLEncoding.DecodeString(credentialID)
	if err != nil {
		return nil, fmt.Errorf("credential: credential id %q is not base64url: %w", credentialID, err)
	}
	challenge, err := p.randomBytes(32)
	if err != nil {
		return nil, err
	}

	assertion, err := p.authenticator.Assert(ctx, AssertionRequest{
		RelyingPartyID: p.relyingPartyID,
		CredentialID:   rawID,
		Challenge:      challenge,
		PRFInput:       storedInput,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: authenticate: %w", err)
	}

	info := &Info{
		CredentialID:    credentialID,
		RawCredentialID: rawID,
		PRFInput:        slices.Clone(storedInput),
		Seed:            ExtractSeed(assertion.PRF, rawID),
	}
	p.logger.Debug("credential asserted",
		"credential_id", credentialID,
		"seed_source", info.Seed.Source,
	)
	return info, nil
}

func (p *Provider) randomBytes(n int) ([]byte, error) {
	buffer := make([]byte, n)
	if _, err := io.ReadFull(p.random, buffer); err != nil {
		return nil, fmt.Errorf("credential: reading random bytes: %w", err)
	}
	return buffer, nil
}
