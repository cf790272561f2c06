// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// ErrParseFailed matches a *ParseError.
var ErrParseFailed = errors.New("ucan: delegation parse failed")

// Parsed is a delegation decoded from one of the proof formats. It is
// one of *Canonical, *Bridged, or *Legacy.
type Parsed interface {
	Format() Format

	// ID is the delegation's CID string. Legacy delegations have no
	// signed block; their ID addresses the JSON bytes instead.
	ID() string

	Issuer() string
	Audience() string
	Capabilities() []Capability
	ExpiresAt() time.Time

	sealed()
}

// Canonical is a verified chain decoded from a multibase archive.
type Canonical struct {
	Chain *Chain
}

// Bridged is a verified chain decoded from an identity CID.
type Bridged struct {
	Link  cid.Cid
	Chain *Chain
}

// Legacy is an unsigned grant. Nothing about it is verified beyond its
// shape.
type Legacy struct {
	id         cid.Cid
	issuer     string
	audience   string
	grants     []Capability
	expiration int64
}

func (p *Canonical) Format() Format             { return FormatCanonical }
func (p *Canonical) ID() string                 { return p.Chain.Root.CID.String() }
func (p *Canonical) Issuer() string             { return p.Chain.Root.Issuer }
func (p *Canonical) Audience() string           { return p.Chain.Root.Audience }
func (p *Canonical) Capabilities() []Capability { return p.Chain.Root.Capabilities }
func (p *Canonical) ExpiresAt() time.Time       { return p.Chain.Root.ExpiresAt() }
func (*Canonical) sealed()                      {}

func (p *Bridged) Format() Format             { return FormatBridge }
func (p *Bridged) ID() string                 { return p.Chain.Root.CID.String() }
func (p *Bridged) Issuer() string             { return p.Chain.Root.Issuer }
func (p *Bridged) Audience() string           { return p.Chain.Root.Audience }
func (p *Bridged) Capabilities() []Capability { return p.Chain.Root.Capabilities }
func (p *Bridged) ExpiresAt() time.Time       { return p.Chain.Root.ExpiresAt() }
func (*Bridged) sealed()                      {}

func (p *Legacy) Format() Format             { return FormatLegacy }
func (p *Legacy) ID() string                 { return p.id.String() }
func (p *Legacy) Issuer() string             { return p.issuer }
func (p *Legacy) Audience() string           { return p.audience }
func (p *Legacy) Capabilities() []Capability { return p.grants }
func (p *Legacy) ExpiresAt() time.Time {
	if p.expiration == 0 {
		return time.Time{}
	}
	return time.Unix(p.expiration, 0).UTC()
}
func (*Legacy) sealed() {}

// ChainOf returns the verified chain behind p, or nil for a legacy
// delegation.
func ChainOf(p Parsed) *Chain {
	switch p := p.(type) {
	case *Canonical:
		return p.Chain
	case *Bridged:
		return p.Chain
	}
	return nil
}

// Attempt records why one format did not parse.
type Attempt struct {
	Format Format
	Err    error
}

// ParseError reports that no format accepted a proof. Attempts lists
// every format tried, in order.
type ParseError struct {
	Attempts []Attempt
}

func (e *ParseError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrParseFailed.Error()
	}
	last := e.Attempts[len(e.Attempts)-1]
	message := fmt.Sprintf("%s: %s: %v", ErrParseFailed, last.Format, last.Err)
	if len(e.Attempts) > 1 {
		earlier := make([]string, 0, len(e.Attempts)-1)
		for _, attempt := range e.Attempts[:len(e.Attempts)-1] {
			earlier = append(earlier, string(attempt.Format))
		}
		message += fmt.Sprintf(" (also tried %s)", strings.Join(earlier, ", "))
	}
	return message
}

func (e *ParseError) Is(target error) bool { return target == ErrParseFailed }

// parsers is the order formats are tried in: most structured first.
var parsers = []struct {
	format Format
	parse  func(string) (Parsed, error)
}{
	{FormatCanonical, parseCanonical},
	{FormatBridge, parseBridge},
	{FormatLegacy, parseLegacy},
}

// ParseProof decodes a proof string in any supported format. Formats
// are tried in order (canonical, bridge, legacy) and the first success
// is returned. If none succeeds the error is a *ParseError.
func ParseProof(proof string) (Parsed, error) {
	proof = strings.TrimSpace(proof)
	parseErr := &ParseError{}
	for _, parser := range parsers {
		parsed, err := parser.parse(proof)
		if err == nil {
			return parsed, nil
		}
		parseErr.Attempts = append(parseErr.Attempts, Attempt{Format: parser.format, Err: err})
	}
	return nil, parseErr
}

func parseCanonical(proof string) (Parsed, error) {
	if proof == "" || (proof[0] != byte(multibase.Base64) && proof[0] != byte(multibase.Base64url)) {
		return nil, errors.New("no base64 multibase prefix")
	}
	_, data, err := multibase.Decode(proof)
	if err != nil {
		return nil, err
	}
	chain, err := ExtractArchive(data)
	if err != nil {
		return nil, err
	}
	return &Canonical{Chain: chain}, nil
}

func parseBridge(proof string) (Parsed, error) {
	link, err := cid.Decode(proof)
	if err != nil {
		return nil, err
	}
	data, err := inlineData(link)
	if err != nil {
		return nil, err
	}
	chain, err := ExtractArchive(data)
	if err != nil {
		return nil, err
	}
	return &Bridged{Link: link, Chain: chain}, nil
}

func parseLegacy(proof string) (Parsed, error) {
	if !strings.HasPrefix(proof, "{") {
		return nil, errors.New("not a JSON object")
	}
	decoder := json.NewDecoder(strings.NewReader(proof))
	decoder.DisallowUnknownFields()
	var legacy legacyDelegation
	if err := decoder.Decode(&legacy); err != nil {
		return nil, err
	}
	if decoder.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	if err := checkPrincipals(legacy.Issuer, legacy.Audience); err != nil {
		return nil, err
	}
	if len(legacy.Capabilities) == 0 {
		return nil, errors.New("no capabilities")
	}
	for _, capability := range legacy.Capabilities {
		if capability.With == "" || capability.Can == "" {
			return nil, fmt.Errorf("capability %+v is incomplete", capability)
		}
	}

	// Re-encoding gives every spelling of the same grant one ID.
	normalized, err := json.Marshal(legacy)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(normalized)
	hash, err := multihash.Encode(digest[:], multihash.BLAKE3)
	if err != nil {
		return nil, err
	}
	return &Legacy{
		id:         cid.NewCidV1(uint64(multicodec.Json), hash),
		issuer:     legacy.Issuer,
		audience:   legacy.Audience,
		grants:     legacy.Capabilities,
		expiration: legacy.Expiration,
	}, nil
}
