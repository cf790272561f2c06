// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/secret"
)

// RequestType names a custodian operation.
type RequestType string

const (
	TypeInit            RequestType = "init"
	TypeGenerateKeypair RequestType = "generateKeypair"
	TypeRestoreKeypair  RequestType = "restoreKeypair"
	TypeEncrypt         RequestType = "encrypt"
	TypeDecrypt         RequestType = "decrypt"
	TypeSign            RequestType = "sign"
	TypeVerify          RequestType = "verify"
	TypeLock            RequestType = "lock"
	TypeStatus          RequestType = "status"
)

// Request is one message to the custodian. Requests and responses
// cross the custodian boundary CBOR-encoded; nothing else does.
type Request struct {
	// ID correlates the response with the caller. The handle assigns
	// a random UUID when the caller leaves it empty.
	ID string `cbor:"id"`

	Type RequestType `cbor:"type"`

	// Payload is the CBOR encoding of the type-specific payload struct
	// below, or absent for requests that take none.
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	ID string `cbor:"id"`
	OK bool   `cbor:"ok"`

	// Result is the CBOR encoding of the type-specific result struct.
	Result codec.RawMessage `cbor:"result,omitempty"`

	// Error and Code are set when OK is false.
	Error string    `cbor:"error,omitempty"`
	Code  ErrorCode `cbor:"code,omitempty"`
}

// InitPayload carries the seed. It is zeroed inside the custodian as
// soon as the protection key is derived.
type InitPayload struct {
	Seed []byte `cbor:"seed"`
}

type GenerateKeypairPayload struct {
	Algorithm string `cbor:"algorithm"`
}

// KeypairResult describes the loaded keypair. Archive is present only
// in the result of generateKeypair.
type KeypairResult struct {
	Algorithm string                  `cbor:"algorithm"`
	PublicKey []byte                  `cbor:"publicKey"`
	Identity  string                  `cbor:"identity"`
	Archive   *archive.KeyPairArchive `cbor:"archive,omitempty"`
}

type RestoreKeypairPayload struct {
	Archive archive.KeyPairArchive `cbor:"archive"`
}

type EncryptPayload struct {
	Plaintext []byte `cbor:"plaintext"`
}

type EncryptResult struct {
	Ciphertext []byte `cbor:"ciphertext"`
	Nonce      []byte `cbor:"nonce"`
}

type DecryptPayload struct {
	Ciphertext []byte `cbor:"ciphertext"`
	Nonce      []byte `cbor:"nonce"`
}

type DecryptResult struct {
	Plaintext []byte `cbor:"plaintext"`
}

func (r *DecryptResult) zero() { secret.Zero(r.Plaintext) }

func (r *KeypairResult) zero() {
	if r.Archive != nil {
		r.Archive.Zero()
	}
}

type SignPayload struct {
	Data []byte `cbor:"data"`
}

type SignResult struct {
	Signature []byte `cbor:"signature"`
}

type VerifyPayload struct {
	Data      []byte `cbor:"data"`
	Signature []byte `cbor:"signature"`
}

type VerifyResult struct {
	Valid bool `cbor:"valid"`
}

// StatusResult reports the custodian's state. Identity fields are empty
// unless a keypair is loaded.
type StatusResult struct {
	State     State  `cbor:"state"`
	Algorithm string `cbor:"algorithm,omitempty"`
	PublicKey []byte `cbor:"publicKey,omitempty"`
	Identity  string `cbor:"identity,omitempty"`
}
