// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"

	"github.com/go-lpc/revan/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the reconstruction counters as Prometheus metrics.
type Metrics struct {
	Events   *prometheus.CounterVec // processed events, per type
	Rejected *prometheus.CounterVec // rejected events, per reason
	Quality  prometheus.Histogram   // sequence quality of Compton events
}

// NewMetrics creates the reconstruction metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revan",
			Name:      "events_total",
			Help:      "Number of processed events, per event type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revan",
			Name:      "rejected_events_total",
			Help:      "Number of rejected events, per rejection reason.",
		}, []string{"reason"}),
		Quality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "revan",
			Name:      "compton_quality",
			Help:      "Quality of the reconstructed Compton sequences (lower is better).",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 10, 8),
		}),
	}

	for _, c := range []prometheus.Collector{m.Events, m.Rejected, m.Quality} {
		err := reg.Register(c)
		if err != nil {
			return nil, fmt.Errorf("stats: could not register metrics: %w", err)
		}
	}
	return m, nil
}

// Observe accounts for a fully processed event.
func (m *Metrics) Observe(evt *event.RawEvent) {
	m.Events.WithLabelValues(evt.Type.String()).Inc()
	if evt.Rejected() {
		m.Rejected.WithLabelValues(evt.Reason.String()).Inc()
		return
	}
	if evt.Type == event.Compton {
		m.Quality.Observe(evt.Quality)
	}
}
