// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/secret"
)

// Options configures a custodian started with Start.
type Options struct {
	// Logger receives lifecycle events. Key material and seeds are
	// never logged. Nil discards.
	Logger *slog.Logger

	// Registerer receives the custodian's request metrics. Nil leaves
	// them unexported.
	Registerer prometheus.Registerer

	// Random is the entropy source for key generation, nonces, and
	// ECDSA signatures. Nil uses crypto/rand.
	Random io.Reader
}

// Handle is the only way to reach a custodian. Each Handle owns one
// custodian goroutine, and every operation is a CBOR-encoded Request
// sent to it and a Response matched back by ID. The custodian handles
// requests one at a time in arrival order, so an operation that returns
// is visible to every later request.
//
// Handle is safe for concurrent use.
type Handle struct {
	requests  chan []byte
	responses chan []byte
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool

	logger *slog.Logger
}

// Start launches a custodian goroutine in the Uninitialized state.
// The caller must Close the handle to zero key material and stop the
// goroutine.
func Start(options Options) (*Handle, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	random := options.Random
	if random == nil {
		random = defaultRandom
	}
	m, err := newMetrics(options.Registerer)
	if err != nil {
		return nil, fmt.Errorf("custodian: registering metrics: %w", err)
	}

	h := &Handle{
		requests:  make(chan []byte),
		responses: make(chan []byte),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		pending:   make(map[string]chan *Response),
		logger:    logger,
	}
	c := &custodian{random: random, logger: logger, metrics: m}
	go h.serve(c)
	go h.dispatch()
	return h, nil
}

// serve is the custodian goroutine.
func (h *Handle) serve(c *custodian) {
	defer close(h.responses)
	for {
		select {
		case data := <-h.requests:
			response := c.process(data)
			select {
			case h.responses <- response:
			case <-h.stop:
				c.lock()
				return
			}
		case <-h.stop:
			c.lock()
			return
		}
	}
}

// dispatch routes encoded responses to the callers waiting on them.
func (h *Handle) dispatch() {
	defer close(h.done)
	for data := range h.responses {
		var response Response
		if err := codec.Unmarshal(data, &response); err != nil {
			h.logger.Error("custodian produced an undecodable response", "error", err)
			continue
		}
		secret.Zero(data)

		h.mu.Lock()
		reply, ok := h.pending[response.ID]
		delete(h.pending, response.ID)
		h.mu.Unlock()
		if !ok {
			// The caller gave up waiting; the operation still ran.
			h.logger.Debug("dropping response for abandoned request", "id", response.ID)
			response.zero()
			continue
		}
		reply <- &response
	}

	h.mu.Lock()
	h.closed = true
	for id, reply := range h.pending {
		close(reply)
		delete(h.pending, id)
	}
	h.mu.Unlock()
}

// Do sends request to the custodian and waits for its response. An
// empty ID is replaced with a random UUID. If ctx ends first, Do
// returns ctx.Err() but the custodian still completes the request; its
// response is discarded.
func (h *Handle) Do(ctx context.Context, request Request) (*Response, error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	reply := make(chan *Response, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := h.pending[request.ID]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: request id %s already in flight", ErrInvalidRequest, request.ID)
	}
	h.pending[request.ID] = reply
	h.mu.Unlock()

	data, err := codec.Marshal(&request)
	if err != nil {
		h.abandon(request.ID)
		return nil, fmt.Errorf("custodian: encoding request: %w", err)
	}
	defer secret.Zero(data)

	select {
	case h.requests <- data:
	case <-ctx.Done():
		h.abandon(request.ID)
		return nil, ctx.Err()
	case <-h.stop:
		h.abandon(request.ID)
		return nil, ErrClosed
	}

	select {
	case response, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		return response, nil
	case <-ctx.Done():
		h.abandon(request.ID)
		return nil, ctx.Err()
	}
}

func (h *Handle) abandon(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// call runs one typed operation: payload (nil for none) is encoded into
// the request and a successful response's result is decoded into result
// (nil to ignore).
func (h *Handle) call(ctx context.Context, requestType RequestType, payload, result any) error {
	request := Request{Type: requestType}
	if payload != nil {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("custodian: encoding %s payload: %w", requestType, err)
		}
		defer secret.Zero(encoded)
		request.Payload = encoded
	}

	response, err := h.Do(ctx, request)
	if err != nil {
		return err
	}
	defer secret.Zero(response.Result)
	if !response.OK {
		return errorFromResponse(response)
	}
	if result != nil {
		if err := codec.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("custodian: decoding %s result: %w", requestType, err)
		}
	}
	return nil
}

func (r *Response) zero() {
	secret.Zero(r.Result)
}

// Init derives the protection key from seed inside the custodian. The
// caller should zero seed once Init returns.
func (h *Handle) Init(ctx context.Context, seed []byte) error {
	return h.call(ctx, TypeInit, &InitPayload{Seed: seed}, nil)
}

// GenerateKeypair creates a fresh random signing keypair, keeps it in
// the custodian, and returns its public half plus an unencrypted
// archive for the caller to seal. The caller must zero the archive once
// sealed.
func (h *Handle) GenerateKeypair(ctx context.Context, algorithm did.Algorithm) (*KeypairResult, error) {
	var result KeypairResult
	if err := h.call(ctx, TypeGenerateKeypair, &GenerateKeypairPayload{Algorithm: string(algorithm)}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RestoreKeypair loads a previously generated keypair from a decrypted
// archive, making Sign available without creating a new identity.
func (h *Handle) RestoreKeypair(ctx context.Context, a *archive.KeyPairArchive) (*KeypairResult, error) {
	var result KeypairResult
	if err := h.call(ctx, TypeRestoreKeypair, &RestoreKeypairPayload{Archive: *a}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Encrypt seals plaintext under the protection key with a fresh nonce.
func (h *Handle) Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce []byte, err error) {
	var result EncryptResult
	if err := h.call(ctx, TypeEncrypt, &EncryptPayload{Plaintext: plaintext}, &result); err != nil {
		return nil, nil, err
	}
	return result.Ciphertext, result.Nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt under the same seed. Any
// authentication failure is ErrDecryptionFailed.
func (h *Handle) Decrypt(ctx context.Context, ciphertext, nonce []byte) ([]byte, error) {
	var result DecryptResult
	if err := h.call(ctx, TypeDecrypt, &DecryptPayload{Ciphertext: ciphertext, Nonce: nonce}, &result); err != nil {
		return nil, err
	}
	return result.Plaintext, nil
}

// Sign signs data with the loaded keypair.
func (h *Handle) Sign(ctx context.Context, data []byte) ([]byte, error) {
	var result SignResult
	if err := h.call(ctx, TypeSign, &SignPayload{Data: data}, &result); err != nil {
		return nil, err
	}
	return result.Signature, nil
}

// Verify checks signature over data against the loaded public key.
func (h *Handle) Verify(ctx context.Context, data, signature []byte) (bool, error) {
	var result VerifyResult
	if err := h.call(ctx, TypeVerify, &VerifyPayload{Data: data, Signature: signature}, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// Lock zeroes all key material. Only Init leaves the Locked state.
func (h *Handle) Lock(ctx context.Context) error {
	return h.call(ctx, TypeLock, nil, nil)
}

// Status reports the custodian's state and loaded identity.
func (h *Handle) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := h.call(ctx, TypeStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close locks the custodian, stops its goroutine, and fails any
// outstanding calls with ErrClosed. Close is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
	return nil
}
