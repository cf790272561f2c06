// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import "context"

// Authenticator is the hardware credential: a platform authenticator
// or security key reached through WebAuthn, or SoftwareAuthenticator
// in development. Implementations return ErrAuthenticationCancelled
// when the user declines the prompt.
type Authenticator interface {
	Create(ctx context.Context, request CreationRequest) (*Attestation, error)
	Assert(ctx context.Context, request AssertionRequest) (*Assertion, error)
}

// CreationRequest is a registration ceremony with the PRF extension
// requested for PRFInput.
type CreationRequest struct {
	RelyingPartyID string
	UserID         []byte
	UserName       string
	DisplayName    string
	Challenge      []byte
	PRFInput       []byte
}

// AssertionRequest is an authentication ceremony for one credential.
type AssertionRequest struct {
	RelyingPartyID string
	CredentialID   []byte
	Challenge      []byte
	PRFInput       []byte
}

// PRFResults carries the PRF extension output. Authenticators that do
// not support the extension return nil results.
type PRFResults struct {
	First []byte
}

// Attestation is the outcome of a registration ceremony.
type Attestation struct {
	CredentialID []byte
	// PublicKey is the credential's own signing key, not the custody
	// signing key.
	PublicKey []byte
	PRF       *PRFResults
}

// Assertion is the outcome of an authentication ceremony.
type Assertion struct {
	CredentialID      []byte
	AuthenticatorData []byte
	Signature         []byte
	PRF               *PRFResults
}
