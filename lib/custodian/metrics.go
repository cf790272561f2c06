// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	custodymetrics "github.com/bureau-foundation/custody/lib/metrics"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	requests, err := custodymetrics.Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: custodymetrics.Namespace,
		Subsystem: "custodian",
		Name:      "requests_total",
		Help:      "Custodian requests processed, by request type and result code.",
	}, []string{"type", "result"}))
	if err != nil {
		return nil, err
	}
	duration, err := custodymetrics.Register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: custodymetrics.Namespace,
		Subsystem: "custodian",
		Name:      "request_seconds",
		Help:      "Time the custodian spent processing a request.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
	}, []string{"type"}))
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests, duration: duration}, nil
}

func (m *metrics) observe(requestType RequestType, response *Response, elapsed time.Duration) {
	label := string(requestType)
	result := "ok"
	if !response.OK {
		result = string(response.Code)
		if response.Code == CodeUnknownRequest {
			label = "unknown"
		}
	}
	m.requests.WithLabelValues(label, result).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}
