// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"github.com/prometheus/client_golang/prometheus"

	custodymetrics "github.com/bureau-foundation/custody/lib/metrics"
)

// Lookup results recorded by the cache.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

func newLookupCounter(registerer prometheus.Registerer) (*prometheus.CounterVec, error) {
	return custodymetrics.Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: custodymetrics.Namespace,
		Subsystem: "revocation",
		Name:      "cache_lookups_total",
		Help:      "Revocation status lookups, by whether the cache answered, the authority answered, or the check failed.",
	}, []string{"result"}))
}

func newRegistryCounter(registerer prometheus.Registerer) (*prometheus.CounterVec, error) {
	return custodymetrics.Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: custodymetrics.Namespace,
		Subsystem: "revocation",
		Name:      "invocations_total",
		Help:      "Revoke invocations received by the registry, by outcome.",
	}, []string{"result"}))
}
