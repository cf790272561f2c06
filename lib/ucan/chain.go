// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ipfs/go-cid"

	"github.com/bureau-foundation/custody/lib/codec"
)

// MaxChainDepth bounds how many hops a proof chain may have.
const MaxChainDepth = 16

// MaxChainBlocks bounds how many delegations one archive may carry.
const MaxChainBlocks = 64

// ErrInvalidChain is returned when a proof chain does not resolve or
// widens authority.
var ErrInvalidChain = errors.New("ucan: invalid proof chain")

// Chain is a delegation together with every delegation its proofs
// reach, stored flat and keyed by CID.
type Chain struct {
	Root   *Delegation
	blocks map[string]*Delegation
}

// NewChain builds a chain from root and the chains of its proofs.
// Every proof root must be named in root.Proofs.
func NewChain(root *Delegation, proofs ...*Chain) *Chain {
	chain := &Chain{Root: root, blocks: map[string]*Delegation{root.CID.KeyString(): root}}
	for _, proof := range proofs {
		maps.Copy(chain.blocks, proof.blocks)
	}
	return chain
}

// Lookup returns the delegation with the given CID.
func (c *Chain) Lookup(id cid.Cid) (*Delegation, bool) {
	d, ok := c.blocks[id.KeyString()]
	return d, ok
}

// Delegations returns every delegation in the chain, root first and the
// rest in CID order.
func (c *Chain) Delegations() []*Delegation {
	rest := make([]*Delegation, 0, len(c.blocks)-1)
	for _, d := range c.blocks {
		if d != c.Root {
			rest = append(rest, d)
		}
	}
	slices.SortFunc(rest, func(a, b *Delegation) int {
		return cmp.Compare(a.CID.KeyString(), b.CID.KeyString())
	})
	return append([]*Delegation{c.Root}, rest...)
}

// archiveWire is the content-addressed archive: root CIDs plus a flat
// map from CID string to block bytes.
type archiveWire struct {
	Roots  [][]byte          `cbor:"roots"`
	Blocks map[string][]byte `cbor:"blocks"`
}

// Archive encodes the chain as a content-addressed archive. The
// encoding is deterministic.
func (c *Chain) Archive() ([]byte, error) {
	wire := archiveWire{
		Roots:  [][]byte{c.Root.CID.Bytes()},
		Blocks: make(map[string][]byte, len(c.blocks)),
	}
	for _, d := range c.blocks {
		wire.Blocks[d.CID.String()] = d.block
	}
	return codec.Marshal(&wire)
}

// ExtractArchive decodes a content-addressed archive. Every block is
// checked against its CID and its signature verified, and every proof
// reachable from the root must be present.
func ExtractArchive(data []byte) (*Chain, error) {
	var wire archiveWire
	if err := codec.UnmarshalStrict(data, &wire); err != nil {
		return nil, fmt.Errorf("ucan: decoding archive: %w", err)
	}
	if len(wire.Roots) != 1 {
		return nil, fmt.Errorf("ucan: archive has %d roots, want 1", len(wire.Roots))
	}
	if len(wire.Blocks) > MaxChainBlocks {
		return nil, fmt.Errorf("%w: archive has %d blocks, limit is %d", ErrInvalidChain, len(wire.Blocks), MaxChainBlocks)
	}
	rootID, err := cid.Cast(wire.Roots[0])
	if err != nil {
		return nil, fmt.Errorf("ucan: archive root: %w", err)
	}

	blocks := make(map[string]*Delegation, len(wire.Blocks))
	for key, block := range wire.Blocks {
		id, err := cid.Decode(key)
		if err != nil {
			return nil, fmt.Errorf("ucan: archive block key %q: %w", key, err)
		}
		if err := checkBlock(id, block); err != nil {
			return nil, err
		}
		d, err := Decode(block)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", id, err)
		}
		blocks[id.KeyString()] = d
	}

	root, ok := blocks[rootID.KeyString()]
	if !ok {
		return nil, fmt.Errorf("ucan: archive root %s has no block", rootID)
	}
	chain := &Chain{Root: root, blocks: blocks}
	if _, err := chain.resolve(root, make(map[string]int)); err != nil {
		return nil, err
	}
	return chain, nil
}

// resolve checks that every proof reachable from d is in the chain and
// returns the number of hops below d. heights memoizes finished
// delegations by CID so shared proofs are walked once; -1 marks a
// delegation still on the walk.
func (c *Chain) resolve(d *Delegation, heights map[string]int) (int, error) {
	key := d.CID.KeyString()
	if height, ok := heights[key]; ok {
		if height < 0 {
			return 0, fmt.Errorf("%w: %s is its own proof", ErrInvalidChain, d.CID)
		}
		return height, nil
	}
	heights[key] = -1

	height := 0
	for _, id := range d.Proofs {
		proof, ok := c.Lookup(id)
		if !ok {
			return 0, fmt.Errorf("%w: proof %s of %s is missing", ErrInvalidChain, id, d.CID)
		}
		below, err := c.resolve(proof, heights)
		if err != nil {
			return 0, err
		}
		height = max(height, below+1)
	}
	if height > MaxChainDepth {
		return 0, fmt.Errorf("%w: deeper than %d hops", ErrInvalidChain, MaxChainDepth)
	}
	heights[key] = height
	return height, nil
}

// Validate checks that authority only narrows along the chain. For each
// hop with proofs, every proof's audience must be the hop's issuer, the
// hop's capabilities must be covered by its proofs' combined
// capabilities, and the hop may not outlive any proof. A hop without
// proofs is a root: each capability's resource must be the issuer's own
// DID.
func (c *Chain) Validate() error {
	if _, err := c.resolve(c.Root, make(map[string]int)); err != nil {
		return err
	}
	return c.validate(c.Root, make(map[string]bool))
}

// validate checks d and everything below it. Each delegation is checked
// once; the checks depend only on a delegation and its own proofs.
func (c *Chain) validate(d *Delegation, checked map[string]bool) error {
	key := d.CID.KeyString()
	if checked[key] {
		return nil
	}
	if len(d.Proofs) == 0 {
		for _, capability := range d.Capabilities {
			if capability.With != d.Issuer {
				return fmt.Errorf("%w: %s grants %s without a proof", ErrInvalidChain, d.Issuer, capability)
			}
		}
		checked[key] = true
		return nil
	}

	var granted []Capability
	for _, id := range d.Proofs {
		proof, ok := c.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: proof %s of %s is missing", ErrInvalidChain, id, d.CID)
		}
		if proof.Audience != d.Issuer {
			return fmt.Errorf("%w: proof %s is addressed to %s, not issuer %s", ErrInvalidChain, id, proof.Audience, d.Issuer)
		}
		if proof.Expiration != 0 && (d.Expiration == 0 || d.Expiration > proof.Expiration) {
			return fmt.Errorf("%w: %s outlives its proof %s", ErrInvalidChain, d.CID, id)
		}
		if err := c.validate(proof, checked); err != nil {
			return err
		}
		granted = append(granted, proof.Capabilities...)
	}
	if missing, ok := AllCovered(granted, d.Capabilities); !ok {
		return fmt.Errorf("%w: %s grants %s beyond its proofs", ErrInvalidChain, d.CID, missing)
	}
	checked[key] = true
	return nil
}
