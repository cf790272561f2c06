// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus conventions shared by custody
// components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every custody metric name.
const Namespace = "custody"

// Register registers collector with registerer and returns the
// collector that is actually registered. When an identical collector is
// already registered (a second custodian in the same process), the
// existing one is returned so both report into the same series. A nil
// registerer leaves collector unregistered; it still counts, nothing
// exports it.
func Register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if registerer == nil {
		return collector, nil
	}
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, err
}
