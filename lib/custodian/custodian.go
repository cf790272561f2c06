// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/secret"
)

// State is the custodian's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateKeyLoaded     State = "key-loaded"
	StateLocked        State = "locked"
)

// custodian is the state owned by the custodian goroutine. Nothing
// outside that goroutine holds a reference to it.
type custodian struct {
	protectionKey *secret.Buffer
	keys          *keypair
	locked        bool

	random  io.Reader
	logger  *slog.Logger
	metrics *metrics
}

func (c *custodian) state() State {
	switch {
	case c.locked:
		return StateLocked
	case c.keys != nil:
		return StateKeyLoaded
	case c.protectionKey != nil:
		return StateInitialized
	}
	return StateUninitialized
}

// process decodes one encoded request, runs it, and returns the
// encoded response.
func (c *custodian) process(data []byte) []byte {
	var request Request
	if err := codec.Unmarshal(data, &request); err != nil {
		return c.encode(&Response{OK: false, Code: CodeInvalidRequest, Error: err.Error()})
	}

	start := time.Now()
	result, err := c.dispatch(&request)
	secret.Zero(request.Payload)

	response := &Response{ID: request.ID}
	if err != nil {
		response.Code = codeFor(err)
		response.Error = err.Error()
		c.logger.Debug("custodian request failed",
			"id", request.ID,
			"type", request.Type,
			"code", response.Code,
		)
	} else {
		response.OK = true
		if result != nil {
			encoded, encodeErr := codec.Marshal(result)
			if encodeErr != nil {
				response.OK = false
				response.Code = CodeInternal
				response.Error = fmt.Sprintf("encoding result: %v", encodeErr)
			} else {
				response.Result = encoded
			}
			if sensitive, ok := result.(interface{ zero() }); ok {
				sensitive.zero()
			}
		}
	}
	c.metrics.observe(request.Type, response, time.Since(start))
	return c.encode(response)
}

func (c *custodian) encode(response *Response) []byte {
	data, err := codec.Marshal(response)
	if err != nil {
		// Response only holds strings, bools, and byte strings.
		panic("custodian: encoding response: " + err.Error())
	}
	secret.Zero(response.Result)
	return data
}

func (c *custodian) dispatch(request *Request) (any, error) {
	switch request.Type {
	case TypeInit:
		return nil, c.init(request.Payload)
	case TypeLock:
		c.lock()
		return nil, nil
	case TypeStatus:
		return c.status(), nil
	}

	if c.locked {
		switch request.Type {
		case TypeGenerateKeypair, TypeRestoreKeypair, TypeEncrypt, TypeDecrypt, TypeSign, TypeVerify:
			return nil, ErrLocked
		}
	}

	switch request.Type {
	case TypeGenerateKeypair:
		return c.generateKeypair(request.Payload)
	case TypeRestoreKeypair:
		return c.restoreKeypair(request.Payload)
	case TypeEncrypt:
		return c.encrypt(request.Payload)
	case TypeDecrypt:
		return c.decrypt(request.Payload)
	case TypeSign:
		return c.sign(request.Payload)
	case TypeVerify:
		return c.verify(request.Payload)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, request.Type)
}

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidRequest)
	}
	if err := codec.UnmarshalStrict(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// init derives the protection key. From Locked it is a full
// re-initialization; otherwise re-deriving replaces the key and keeps
// any loaded keypair.
func (c *custodian) init(payload []byte) error {
	var request InitPayload
	if err := decodePayload(payload, &request); err != nil {
		return err
	}
	defer secret.Zero(request.Seed)

	key, err := DeriveProtectionKey(request.Seed)
	if err != nil {
		return err
	}
	if c.locked {
		c.locked = false
	}
	if c.protectionKey != nil {
		c.protectionKey.Close()
	}
	c.protectionKey = key
	c.logger.Debug("custodian initialized")
	return nil
}

func (c *custodian) generateKeypair(payload []byte) (any, error) {
	if c.protectionKey == nil {
		return nil, ErrKeyNotReady
	}
	var request GenerateKeypairPayload
	if len(payload) > 0 {
		if err := decodePayload(payload, &request); err != nil {
			return nil, err
		}
	}
	algorithm, err := did.ParseAlgorithm(request.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	keys, err := generateKeypair(algorithm, c.random)
	if err != nil {
		return nil, err
	}
	c.replaceKeys(keys)
	c.logger.Info("signing keypair generated", "identity", keys.identity, "algorithm", keys.algorithm)

	result := keys.result()
	result.Archive = keys.toArchive()
	return &result, nil
}

func (c *custodian) restoreKeypair(payload []byte) (any, error) {
	var request RestoreKeypairPayload
	if err := decodePayload(payload, &request); err != nil {
		return nil, err
	}
	defer request.Archive.Zero()

	keys, err := keypairFromArchive(&request.Archive)
	if err != nil {
		return nil, err
	}
	c.replaceKeys(keys)
	c.logger.Debug("signing keypair restored", "identity", keys.identity)

	result := keys.result()
	return &result, nil
}

func (c *custodian) replaceKeys(keys *keypair) {
	if c.keys != nil {
		c.keys.close()
	}
	c.keys = keys
}

func (c *custodian) encrypt(payload []byte) (any, error) {
	if c.protectionKey == nil {
		return nil, ErrKeyNotReady
	}
	var request EncryptPayload
	if err := decodePayload(payload, &request); err != nil {
		return nil, err
	}
	defer secret.Zero(request.Plaintext)

	ciphertext, nonce, err := seal(c.protectionKey, c.random, request.Plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptResult{Ciphertext: ciphertext, Nonce: nonce}, nil
}

func (c *custodian) decrypt(payload []byte) (any, error) {
	if c.protectionKey == nil {
		return nil, ErrKeyNotReady
	}
	var request DecryptPayload
	if err := decodePayload(payload, &request); err != nil {
		return nil, err
	}
	plaintext, err := open(c.protectionKey, request.Ciphertext, request.Nonce)
	if err != nil {
		return nil, err
	}
	return &DecryptResult{Plaintext: plaintext}, nil
}

func (c *custodian) sign(payload []byte) (any, error) {
	if c.keys == nil {
		return nil, ErrKeyNotLoaded
	}
	var request SignPayload
	if err := decodePayload(payload, &request); err != nil {
		return nil, err
	}
	signature, err := c.keys.sign(c.random, request.Data)
	if err != nil {
		return nil, err
	}
	return &SignResult{Signature: signature}, nil
}

func (c *custodian) verify(payload []byte) (any, error) {
	if c.keys == nil {
		return nil, ErrKeyNotLoaded
	}
	var request VerifyPayload
	if err := decodePayload(payload, &request); err != nil {
		return nil, err
	}
	return &VerifyResult{Valid: c.keys.verify(request.Data, request.Signature)}, nil
}

func (c *custodian) status() *StatusResult {
	result := &StatusResult{State: c.state()}
	if c.keys != nil && !c.locked {
		result.Algorithm = string(c.keys.algorithm)
		result.PublicKey = c.keys.publicKey
		result.Identity = c.keys.identity
	}
	return result
}

// lock zeroes all key material. Reachable from every state.
func (c *custodian) lock() {
	if c.protectionKey != nil {
		c.protectionKey.Close()
		c.protectionKey = nil
	}
	if c.keys != nil {
		c.keys.close()
		c.keys = nil
	}
	if !c.locked {
		c.logger.Info("custodian locked")
	}
	c.locked = true
}
