// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every custody package.
//
// Two formats cross package boundaries:
//
//   - CBOR for everything that is hashed or signed: custodian
//     request/response messages, delegation payloads, delegation
//     archives, and the plaintext of sealed key archives.
//   - JSON for records in the durable store and for CLI output.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which is what
// makes a delegation's content identifier reproducible.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// [UnmarshalStrict] is for decoding into types whose shape must be
// exact. A key archive that decrypts correctly but carries extra or
// duplicated fields is treated as corrupt rather than partially read.
//
// # Struct Tag Rules
//
// A `cbor` tag means the type is only ever serialized as CBOR. A
// `json` tag means the type may be serialized as both; fxamacker/cbor
// falls back to `json` tags when `cbor` tags are absent. Never put
// both tags on one field.
package codec
