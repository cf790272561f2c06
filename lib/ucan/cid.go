// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ucan

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// BlockCID returns the content identifier of a signed delegation block:
// CIDv1, dag-cose codec, BLAKE3-256 multihash.
func BlockCID(block []byte) (cid.Cid, error) {
	digest := blake3.Sum256(block)
	hash, err := multihash.Encode(digest[:], multihash.BLAKE3)
	if err != nil {
		return cid.Undef, fmt.Errorf("ucan: encoding multihash: %w", err)
	}
	return cid.NewCidV1(uint64(multicodec.DagCose), hash), nil
}

// checkBlock verifies that block hashes to c.
func checkBlock(c cid.Cid, block []byte) error {
	if c.Prefix().Codec != uint64(multicodec.DagCose) {
		return fmt.Errorf("ucan: block %s has codec %s, want dag-cose", c, multicodec.Code(c.Prefix().Codec))
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return fmt.Errorf("ucan: block %s: %w", c, err)
	}
	if decoded.Code != multihash.BLAKE3 {
		return fmt.Errorf("ucan: block %s uses hash %s, want blake3", c, multihash.Codes[decoded.Code])
	}
	digest := blake3.Sum256(block)
	if !bytes.Equal(decoded.Digest, digest[:]) {
		return fmt.Errorf("ucan: block content does not match %s", c)
	}
	return nil
}

// inlineCID wraps data in a CIDv1 whose identity multihash carries the
// bytes themselves.
func inlineCID(data []byte) (cid.Cid, error) {
	hash, err := multihash.Encode(data, multihash.IDENTITY)
	if err != nil {
		return cid.Undef, fmt.Errorf("ucan: encoding identity multihash: %w", err)
	}
	return cid.NewCidV1(uint64(multicodec.DagCbor), hash), nil
}

// inlineData extracts the bytes from a CID built by inlineCID.
func inlineData(c cid.Cid) ([]byte, error) {
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return nil, err
	}
	if decoded.Code != multihash.IDENTITY {
		return nil, fmt.Errorf("link %s is not an identity CID", c)
	}
	return decoded.Digest, nil
}
