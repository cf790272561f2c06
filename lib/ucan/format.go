// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"encoding/json"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// Format names a delegation proof wire format.
type Format string

const (
	// FormatCanonical is a multibase-encoded content-addressed archive:
	// "m" + base64 or "u" + base64url.
	FormatCanonical Format = "canonical"

	// FormatBridge is a CID string whose identity multihash inlines the
	// archive bytes, the link form upload clients pass proofs around in.
	FormatBridge Format = "bridge"

	// FormatLegacy is an unsigned JSON object from before delegations
	// were signed. It is accepted on import only.
	FormatLegacy Format = "legacy"
)

// Encode renders the chain in the canonical format with the given
// multibase: multibase.Base64 ("m") or multibase.Base64url ("u").
func Encode(chain *Chain, encoding multibase.Encoding) (string, error) {
	if encoding != multibase.Base64 && encoding != multibase.Base64url {
		return "", fmt.Errorf("ucan: unsupported proof encoding %q", rune(encoding))
	}
	data, err := chain.Archive()
	if err != nil {
		return "", err
	}
	return multibase.Encode(encoding, data)
}

// EncodeBridge renders the chain as an identity CID in base32.
func EncodeBridge(chain *Chain) (string, error) {
	data, err := chain.Archive()
	if err != nil {
		return "", err
	}
	link, err := inlineCID(data)
	if err != nil {
		return "", err
	}
	return link.String(), nil
}

// legacyDelegation is the pre-signature JSON shape.
type legacyDelegation struct {
	Issuer       string       `json:"issuer"`
	Audience     string       `json:"audience"`
	Capabilities []Capability `json:"capabilities"`
	Expiration   int64        `json:"expiration,omitempty"`
}

// EncodeLegacy renders d's grant in the legacy JSON format. The result
// carries no signature and no proofs.
func EncodeLegacy(d *Delegation) (string, error) {
	data, err := json.Marshal(legacyDelegation{
		Issuer:       d.Issuer,
		Audience:     d.Audience,
		Capabilities: d.Capabilities,
		Expiration:   d.Expiration,
	})
	if err != nil {
		return "", fmt.Errorf("ucan: encoding legacy delegation: %w", err)
	}
	return string(data), nil
}
