// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotReady is returned by operations that need the
	// protection key before Init has run.
	ErrKeyNotReady = errors.New("custodian: protection key not ready")

	// ErrKeyNotLoaded is returned by operations that need the signing
	// keypair before GenerateKeypair or RestoreKeypair. It matches
	// ErrKeyNotReady under errors.Is.
	ErrKeyNotLoaded = fmt.Errorf("%w: no signing keypair loaded", ErrKeyNotReady)

	// ErrDecryptionFailed is returned when ciphertext does not
	// authenticate under the protection key: the seed differs from
	// the one the data was sealed with, or the data was altered.
	ErrDecryptionFailed = errors.New("custodian: decryption failed")

	// ErrLocked is returned by every operation except Init and Lock
	// once the custodian has been locked.
	ErrLocked = errors.New("custodian: locked")

	// ErrUnknownRequest is returned for a request type the custodian
	// does not implement.
	ErrUnknownRequest = errors.New("custodian: unknown request type")

	// ErrInvalidRequest is returned for a request whose payload does
	// not decode or fails validation.
	ErrInvalidRequest = errors.New("custodian: invalid request")

	// ErrClosed is returned once the handle has been closed.
	ErrClosed = errors.New("custodian: closed")
)

// ErrorCode is the wire form of a custodian error in a Response.
type ErrorCode string

const (
	CodeKeyNotReady      ErrorCode = "key-not-ready"
	CodeKeyNotLoaded     ErrorCode = "key-not-loaded"
	CodeDecryptionFailed ErrorCode = "decryption-failed"
	CodeLocked           ErrorCode = "locked"
	CodeUnknownRequest   ErrorCode = "unknown-request"
	CodeInvalidRequest   ErrorCode = "invalid-request"
	CodeInternal         ErrorCode = "internal"
)

var codeErrors = map[ErrorCode]error{
	CodeKeyNotReady:      ErrKeyNotReady,
	CodeKeyNotLoaded:     ErrKeyNotLoaded,
	CodeDecryptionFailed: ErrDecryptionFailed,
	CodeLocked:           ErrLocked,
	CodeUnknownRequest:   ErrUnknownRequest,
	CodeInvalidRequest:   ErrInvalidRequest,
}

// codeFor maps an error raised inside the custodian to its wire code.
// ErrKeyNotLoaded is checked first because it also matches
// ErrKeyNotReady.
func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrKeyNotLoaded):
		return CodeKeyNotLoaded
	case errors.Is(err, ErrKeyNotReady):
		return CodeKeyNotReady
	case errors.Is(err, ErrDecryptionFailed):
		return CodeDecryptionFailed
	case errors.Is(err, ErrLocked):
		return CodeLocked
	case errors.Is(err, ErrUnknownRequest):
		return CodeUnknownRequest
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	}
	return CodeInternal
}

// errorFromResponse rebuilds a matchable error from a failed Response.
func errorFromResponse(response *Response) error {
	sentinel, ok := codeErrors[response.Code]
	if !ok {
		return fmt.Errorf("custodian: %s", response.Error)
	}
	if response.Error == "" || response.Error == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w (%s)", sentinel, response.Error)
}
