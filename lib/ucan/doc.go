// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ucan implements signed, chainable capability delegations.
//
// A [Delegation] is a COSE_Sign1 message over a deterministic CBOR
// payload naming issuer, audience, capabilities, validity window, and
// proofs. Its identifier is a CIDv1 (dag-cose codec, BLAKE3-256) of the
// signed block. Proofs are CIDs, never embedded delegations: a [Chain]
// holds the blocks flat and resolves proofs by lookup, so a proof must
// exist before anything that cites it and cycles cannot be expressed.
//
// Chains travel as a content-addressed archive ({roots, blocks}) in one
// of three proof formats, tried by [ParseProof] in a fixed order:
//
//   - canonical: multibase "m" (base64) or "u" (base64url) archive
//   - bridge: a CID whose identity multihash inlines the archive
//   - legacy: an unsigned JSON object, accepted for old data only
package ucan
