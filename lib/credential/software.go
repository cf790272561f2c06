// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/custody/lib/secret"
)

var (
	hkdfInfoCredentialRandom = []byte("custody.software-authenticator.cred-random.v1")
	hkdfInfoCredentialKey    = []byte("custody.software-authenticator.cred-key.v1")
)

// prfSaltPrefix is the WebAuthn PRF salt label: the extension input is
// hashed with this prefix before reaching hmac-secret.
const prfSaltPrefix = "WebAuthn PRF\x00"

// SoftwareConfig configures a SoftwareAuthenticator.
type SoftwareConfig struct {
	// Master is the authenticator's root secret. Every credential's
	// key and PRF secret are derived from it and the credential id,
	// so a credential created in one process can be asserted in
	// another. Borrowed; the caller closes it.
	Master *secret.Buffer

	// DisablePRF makes the authenticator behave like hardware without
	// the PRF extension: ceremonies succeed but return no PRF results.
	DisablePRF bool

	// Random supplies credential ids. Nil uses crypto/rand.
	Random io.Reader
}

// SoftwareAuthenticator is an Authenticator implemented in process
// memory. It models a platform authenticator with the hmac-secret
// extension for development and tests. It provides none of the
// isolation of real hardware.
type SoftwareAuthenticator struct {
	master     *secret.Buffer
	disablePRF bool
	random     io.Reader
	cancelNext atomic.Bool
}

// NewSoftwareAuthenticator returns an authenticator rooted at
// cfg.Master, which must be at least 32 bytes.
func NewSoftwareAuthenticator(cfg SoftwareConfig) (*SoftwareAuthenticator, error) {
	if cfg.Master == nil || cfg.Master.Len() < 32 {
		return nil, fmt.Errorf("credential: software authenticator master secret must be at least 32 bytes")
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &SoftwareAuthenticator{master: cfg.Master, disablePRF: cfg.DisablePRF, random: random}, nil
}

// CancelNext makes the next ceremony fail with
// ErrAuthenticationCancelled, as if the user dismissed the prompt.
func (a *SoftwareAuthenticator) CancelNext() {
	a.cancelNext.Store(true)
}

func (a *SoftwareAuthenticator) Create(ctx context.Context, request CreationRequest) (*Attestation, error) {
	if err := a.begin(ctx); err != nil {
		return nil, err
	}
	credentialID := make([]byte, 32)
	if _, err := io.ReadFull(a.random, credentialID); err != nil {
		return nil, fmt.Errorf("generating credential id: %w", err)
	}
	privateKey, err := a.credentialKey(request.RelyingPartyID, credentialID)
	if err != nil {
		return nil, err
	}
	attestation := &Attestation{
		CredentialID: credentialID,
		PublicKey:    privateKey.Public().(ed25519.PublicKey),
	}
	if !a.disablePRF && len(request.PRFInput) > 0 {
		first, err := a.evaluatePRF(request.RelyingPartyID, credentialID, request.PRFInput)
		if err != nil {
			return nil, err
		}
		attestation.PRF = &PRFResults{First: first}
	}
	return attestation, nil
}

func (a *SoftwareAuthenticator) Assert(ctx context.Context, request AssertionRequest) (*Assertion, error) {
	if err := a.begin(ctx); err != nil {
		return nil, err
	}
	if len(request.CredentialID) == 0 {
		return nil, fmt.Errorf("assertion request has no credential id")
	}
	privateKey, err := a.credentialKey(request.RelyingPartyID, request.CredentialID)
	if err != nil {
		return nil, err
	}
	rpHash := sha256.Sum256([]byte(request.RelyingPartyID))
	// Authenticator data: rpIdHash, flags (user present + verified),
	// zero signature counter.
	authenticatorData := append(rpHash[:], 0x05, 0, 0, 0, 0)
	signed := append(append([]byte{}, authenticatorData...), request.Challenge...)

	assertion := &Assertion{
		CredentialID:      request.CredentialID,
		AuthenticatorData: authenticatorData,
		Signature:         ed25519.Sign(privateKey, signed),
	}
	if !a.disablePRF && len(request.PRFInput) > 0 {
		first, err := a.evaluatePRF(request.RelyingPartyID, request.CredentialID, request.PRFInput)
		if err != nil {
			return nil, err
		}
		assertion.PRF = &PRFResults{First: first}
	}
	return assertion, nil
}

func (a *SoftwareAuthenticator) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationCancelled, err)
	}
	if a.cancelNext.Swap(false) {
		return ErrAuthenticationCancelled
	}
	return nil
}

// evaluatePRF computes HMAC-SHA256(credRandom, SHA-256(label || input)),
// the hmac-secret construction behind the WebAuthn PRF extension.
func (a *SoftwareAuthenticator) evaluatePRF(relyingPartyID string, credentialID, input []byte) ([]byte, error) {
	credRandom, err := a.derive(hkdfInfoCredentialRandom, relyingPartyID, credentialID)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(credRandom)

	salt := sha256.Sum256(append([]byte(prfSaltPrefix), input...))
	mac := hmac.New(sha256.New, credRandom)
	mac.Write(salt[:])
	return mac.Sum(nil), nil
}

func (a *SoftwareAuthenticator) credentialKey(relyingPartyID string, credentialID []byte) (ed25519.PrivateKey, error) {
	seed, err := a.derive(hkdfInfoCredentialKey, relyingPartyID, credentialID)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(seed)
	return ed25519.NewKeyFromSeed(seed), nil
}

func (a *SoftwareAuthenticator) derive(info []byte, relyingPartyID string, credentialID []byte) ([]byte, error) {
	salt := append([]byte(relyingPartyID+"\x00"), credentialID...)
	reader := hkdf.New(sha256.New, a.master.Bytes(), salt, info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("deriving credential secret: %w", err)
	}
	return out, nil
}
