// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/ucan"
)

// recordKeyPrefix prefixes the store key of each revocation record.
const recordKeyPrefix = "revocations/"

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store store.Store

	// Identity is the registry's DID. When set, invocations must be
	// addressed to it.
	Identity string

	Clock      clock.Clock
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Registry is an Authority that verifies revoke invocations itself and
// keeps the records in a store.
type Registry struct {
	store       store.Store
	identity    string
	clock       clock.Clock
	logger      *slog.Logger
	invocations *prometheus.CounterVec

	// mu makes check-then-write in Revoke atomic within the process.
	mu sync.Mutex
}

var _ Authority = (*Registry)(nil)

// NewRegistry creates a Registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("revocation: registry needs a store")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	invocations, err := newRegistryCounter(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("revocation: registering metrics: %w", err)
	}
	return &Registry{
		store:       config.Store,
		identity:    config.Identity,
		clock:       config.Clock,
		logger:      config.Logger,
		invocations: invocations,
	}, nil
}

// Status reports whether a record exists for the delegation.
func (r *Registry) Status(ctx context.Context, delegationID string) (bool, error) {
	_, found, err := r.Lookup(ctx, delegationID)
	return found, err
}

// Lookup returns the record for the delegation, if any.
func (r *Registry) Lookup(ctx context.Context, delegationID string) (*Record, bool, error) {
	var record Record
	found, err := store.GetJSON(ctx, r.store, recordKeyPrefix+delegationID, &record)
	if err != nil || !found {
		return nil, false, err
	}
	return &record, true, nil
}

// Revoke verifies the invocation and records the revocation. Revoking
// an already revoked delegation returns the existing record.
func (r *Registry) Revoke(ctx context.Context, invocation []byte) (*Record, error) {
	now := r.clock.Now()
	revocation, err := ucan.DecodeRevocation(invocation, now)
	if err != nil {
		r.invocations.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if r.identity != "" && revocation.Invocation.Audience != r.identity {
		r.invocations.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: invocation addressed to %s, not %s", ErrRejected, revocation.Invocation.Audience, r.identity)
	}

	id := revocation.Target.CID.String()
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		r.invocations.WithLabelValues("duplicate").Inc()
		return existing, nil
	}

	record := &Record{
		DelegationID: id,
		RevokedBy:    revocation.Invocation.Issuer,
		RevokedAt:    now.UTC(),
	}
	if err := store.SetJSON(ctx, r.store, recordKeyPrefix+id, record); err != nil {
		return nil, err
	}
	r.invocations.WithLabelValues("revoked").Inc()
	r.logger.Info("delegation revoked", "delegation", id, "by", record.RevokedBy)
	return record, nil
}
