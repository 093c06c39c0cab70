// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcmc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Proposal outcome labels.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeInvalid  = "invalid"
)

// Metrics exports sampler progress as Prometheus metrics. All methods are
// safe for concurrent use; chains running in parallel share one instance.
type Metrics struct {
	proposalsTotal *prometheus.CounterVec
	samplesTotal   prometheus.Counter
	logPosterior   prometheus.Gauge
}

// NewMetrics creates and registers the sampler metrics.
//
// Inputs:
//   - registry: Target registerer; nil uses prometheus.DefaultRegisterer.
//
// Outputs:
//   - *Metrics: Registered metrics handle.
//   - error: Non-nil if a collector is already registered.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		proposalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contact_zones",
				Subsystem: "sampler",
				Name:      "proposals_total",
				Help:      "Proposals by move kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		samplesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "contact_zones",
				Subsystem: "sampler",
				Name:      "samples_total",
				Help:      "Recorded posterior samples.",
			},
		),
		logPosterior: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contact_zones",
				Subsystem: "sampler",
				Name:      "log_posterior",
				Help:      "Log-posterior of the most recently sampled state.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.proposalsTotal, m.samplesTotal, m.logPosterior} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveProposal counts one proposal outcome.
func (m *Metrics) ObserveProposal(kind, outcome string) {
	m.proposalsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSample counts one recorded sample and publishes its posterior.
func (m *Metrics) ObserveSample(logPosterior float64) {
	m.samplesTotal.Inc()
	m.logPosterior.Set(logPosterior)
}
