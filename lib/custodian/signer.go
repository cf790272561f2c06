// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"context"
	"fmt"
	"io"

	"github.com/veraison/go-cose"

	"github.com/bureau-foundation/custody/lib/did"
)

// Signer returns a cose.Signer that signs with the custodian's loaded
// keypair. The private key never leaves the custodian: each Sign call
// is a sign request. ctx bounds every such request.
func (h *Handle) Signer(ctx context.Context) (cose.Signer, error) {
	status, err := h.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.State == StateLocked {
		return nil, ErrLocked
	}
	if status.Identity == "" {
		return nil, ErrKeyNotLoaded
	}
	algorithm, err := COSEAlgorithm(did.Algorithm(status.Algorithm))
	if err != nil {
		return nil, err
	}
	return &handleSigner{ctx: ctx, handle: h, algorithm: algorithm}, nil
}

// COSEAlgorithm maps a key algorithm to the COSE signature algorithm
// the custodian's signatures conform to.
func COSEAlgorithm(algorithm did.Algorithm) (cose.Algorithm, error) {
	switch algorithm {
	case did.Ed25519:
		return cose.AlgorithmEdDSA, nil
	case did.P256:
		return cose.AlgorithmES256, nil
	}
	return 0, fmt.Errorf("custodian: no COSE algorithm for %q", algorithm)
}

type handleSigner struct {
	ctx       context.Context
	handle    *Handle
	algorithm cose.Algorithm
}

func (s *handleSigner) Algorithm() cose.Algorithm { return s.algorithm }

// Sign ignores rand; the custodian uses its own entropy source.
func (s *handleSigner) Sign(_ io.Reader, content []byte) ([]byte, error) {
	return s.handle.Sign(s.ctx, content)
}
