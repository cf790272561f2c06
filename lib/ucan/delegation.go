// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/veraison/go-cose"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/did"
)

// Version is the payload version written into every delegation.
const Version = "custody-ucan/1"

// NonceSize is the length of the random nonce Issue adds when the
// caller supplies none.
const NonceSize = 16

// MaxProofs bounds how many proofs one delegation may cite.
const MaxProofs = 8

// ErrInvalidDelegation is returned when a block does not decode to a
// well-formed, correctly signed delegation.
var ErrInvalidDelegation = errors.New("ucan: invalid delegation")

// Delegation is a signed grant of capabilities from Issuer to Audience.
// Proofs name the delegations Issuer's own authority derives from by
// content identifier; they are resolved through a [Chain].
type Delegation struct {
	CID          cid.Cid
	Issuer       string
	Audience     string
	Capabilities []Capability

	// Expiration and NotBefore are unix seconds; zero means unbounded.
	Expiration int64
	NotBefore  int64
	Nonce      []byte
	Proofs     []cid.Cid

	Signature []byte

	block []byte
}

// payload is the signed CBOR body of a delegation.
type payload struct {
	Version      string       `cbor:"v"`
	Issuer       string       `cbor:"iss"`
	Audience     string       `cbor:"aud"`
	Capabilities []Capability `cbor:"att"`
	Expiration   int64        `cbor:"exp,omitempty"`
	NotBefore    int64        `cbor:"nbf,omitempty"`
	Nonce        []byte       `cbor:"nnc,omitempty"`
	Proofs       [][]byte     `cbor:"prf,omitempty"`
}

// Params describes a delegation to issue.
type Params struct {
	Issuer       string
	Audience     string
	Capabilities []Capability
	Expiration   time.Time
	NotBefore    time.Time
	Nonce        []byte
	Proofs       []cid.Cid

	// Random supplies the nonce and any signing randomness. Nil means
	// crypto/rand.
	Random io.Reader
}

// Issue signs a new delegation with signer, which must hold the private
// key of params.Issuer. The result is a COSE_Sign1 message over the
// deterministic CBOR payload.
func Issue(signer cose.Signer, params Params) (*Delegation, error) {
	if err := checkPrincipals(params.Issuer, params.Audience); err != nil {
		return nil, err
	}
	if len(params.Capabilities) == 0 {
		return nil, fmt.Errorf("%w: no capabilities", ErrInvalidDelegation)
	}
	issuer, err := did.Parse(params.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer: %v", ErrInvalidDelegation, err)
	}
	if want := algorithmFor(issuer.Algorithm); signer.Algorithm() != want {
		return nil, fmt.Errorf("%w: signer algorithm %s does not match issuer key type %s", ErrInvalidDelegation, signer.Algorithm(), issuer.Algorithm)
	}

	if err := checkProofs(params.Proofs); err != nil {
		return nil, err
	}

	random := params.Random
	if random == nil {
		random = rand.Reader
	}
	nonce := params.Nonce
	if nonce == nil {
		nonce = make([]byte, NonceSize)
		if _, err := io.ReadFull(random, nonce); err != nil {
			return nil, fmt.Errorf("ucan: generating nonce: %w", err)
		}
	}
	body := payload{
		Version:      Version,
		Issuer:       params.Issuer,
		Audience:     params.Audience,
		Capabilities: params.Capabilities,
		Expiration:   unixOrZero(params.Expiration),
		NotBefore:    unixOrZero(params.NotBefore),
		Nonce:        nonce,
	}
	for _, proof := range params.Proofs {
		body.Proofs = append(body.Proofs, proof.Bytes())
	}
	encoded, err := codec.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("ucan: encoding payload: %w", err)
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: signer.Algorithm(),
		},
	}
	block, err := cose.Sign1(random, signer, headers, encoded, nil)
	if err != nil {
		return nil, fmt.Errorf("ucan: signing delegation from %s: %w", params.Issuer, err)
	}
	return Decode(block)
}

// Decode parses a signed delegation block and verifies its signature
// against the issuer's did:key.
func Decode(block []byte) (*Delegation, error) {
	var message cose.Sign1Message
	if err := message.UnmarshalCBOR(block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	var body payload
	if err := codec.UnmarshalStrict(message.Payload, &body); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidDelegation, err)
	}
	if body.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidDelegation, body.Version)
	}
	if err := checkPrincipals(body.Issuer, body.Audience); err != nil {
		return nil, err
	}
	if len(body.Capabilities) == 0 {
		return nil, fmt.Errorf("%w: no capabilities", ErrInvalidDelegation)
	}

	issuer, err := did.Parse(body.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer: %v", ErrInvalidDelegation, err)
	}
	key, err := issuer.CryptoKey()
	if err != nil {
		return nil, fmt.Errorf("%w: issuer key: %v", ErrInvalidDelegation, err)
	}
	verifier, err := cose.NewVerifier(algorithmFor(issuer.Algorithm), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelegation, err)
	}
	if err := message.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: signature by %s: %v", ErrInvalidDelegation, body.Issuer, err)
	}

	proofs := make([]cid.Cid, 0, len(body.Proofs))
	for _, raw := range body.Proofs {
		proof, err := cid.Cast(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: proof link: %v", ErrInvalidDelegation, err)
		}
		proofs = append(proofs, proof)
	}
	if err := checkProofs(proofs); err != nil {
		return nil, err
	}
	id, err := BlockCID(block)
	if err != nil {
		return nil, err
	}
	return &Delegation{
		CID:          id,
		Issuer:       body.Issuer,
		Audience:     body.Audience,
		Capabilities: body.Capabilities,
		Expiration:   body.Expiration,
		NotBefore:    body.NotBefore,
		Nonce:        body.Nonce,
		Proofs:       proofs,
		Signature:    message.Signature,
		block:        slices.Clone(block),
	}, nil
}

// Block returns the signed encoding the delegation's CID is computed
// over.
func (d *Delegation) Block() []byte {
	return d.block
}

// ExpiresAt returns the expiration as a time, or the zero time.
func (d *Delegation) ExpiresAt() time.Time {
	if d.Expiration == 0 {
		return time.Time{}
	}
	return time.Unix(d.Expiration, 0).UTC()
}

// Expired reports whether the delegation has expired at now.
func (d *Delegation) Expired(now time.Time) bool {
	return d.Expiration != 0 && now.Unix() >= d.Expiration
}

// Pending reports whether the delegation is not yet valid at now.
func (d *Delegation) Pending(now time.Time) bool {
	return d.NotBefore != 0 && now.Unix() < d.NotBefore
}

func checkPrincipals(issuer, audience string) error {
	if issuer == "" || audience == "" {
		return fmt.Errorf("%w: issuer and audience are required", ErrInvalidDelegation)
	}
	if !strings.HasPrefix(audience, "did:") {
		return fmt.Errorf("%w: audience %q is not a DID", ErrInvalidDelegation, audience)
	}
	return nil
}

// checkProofs rejects proof lists over MaxProofs and lists naming the
// same delegation twice.
func checkProofs(proofs []cid.Cid) error {
	if len(proofs) > MaxProofs {
		return fmt.Errorf("%w: %d proofs, limit is %d", ErrInvalidDelegation, len(proofs), MaxProofs)
	}
	seen := make(map[string]bool, len(proofs))
	for _, proof := range proofs {
		key := proof.KeyString()
		if seen[key] {
			return fmt.Errorf("%w: proof %s listed twice", ErrInvalidDelegation, proof)
		}
		seen[key] = true
	}
	return nil
}

func algorithmFor(algorithm did.Algorithm) cose.Algorithm {
	if algorithm == did.P256 {
		return cose.AlgorithmES256
	}
	return cose.AlgorithmEdDSA
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
