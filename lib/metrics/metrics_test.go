// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "test_total",
		Help:      "Test counter.",
	}, []string{"result"})
}

func TestRegisterReturnsExisting(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := Register(registry, newCounter())
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := Register(registry, newCounter())
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}

	second.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(first.WithLabelValues("ok")); got != 1 {
		t.Errorf("first collector saw %v increments, want 1", got)
	}
}

func TestRegisterNilRegisterer(t *testing.T) {
	counter, err := Register(nil, newCounter())
	if err != nil {
		t.Fatalf("Register(nil): %v", err)
	}
	counter.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(counter.WithLabelValues("ok")); got != 1 {
		t.Errorf("unregistered counter = %v, want 1", got)
	}
}
