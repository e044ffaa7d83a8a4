// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stats implements the background sampling reporter described in
// spec §4.4. It is intentionally independent of the Prometheus instruments
// in internal/metrics: its counters are sampled copies kept for a rough
// "is the bridge alive" debug log line, not the source of truth.
package stats

import (
	"context"
	"net/http"
	"time"

	promMetrics "github.com/CrowdStrike/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gometrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

const flushInterval = 3 * time.Second

// Stats holds the per-process sampled counters from spec §3. They are
// go-metrics counters/gauges rather than atomics directly so they can be
// bridged into a diagnostic-only Prometheus registry via
// CrowdStrike/go-metrics-prometheus, independent of the spec-mandated
// exported counters in internal/metrics (spec §9's "ambiguity — counter
// reset" note: resetting these must never touch the exported metrics).
type Stats struct {
	registry     gometrics.Registry
	received     gometrics.Counter
	published    gometrics.Counter
	inFlight     gometrics.Gauge
	lastSample   int64
	promRegistry *prometheus.Registry
	provider     *promMetrics.PrometheusProvider
}

// New creates an internal stats registry, independent from the exported
// Prometheus metrics.
func New() *Stats {
	registry := gometrics.NewRegistry()
	received := gometrics.NewCounter()
	published := gometrics.NewCounter()
	inFlight := gometrics.NewGauge()

	registry.Register("received_total", received)
	registry.Register("published_total", published)
	registry.Register("in_flight_snapshot", inFlight)

	promRegistry := prometheus.NewRegistry()
	provider := promMetrics.NewPrometheusProvider(registry, "forwarding", "internal", promRegistry, flushInterval)

	return &Stats{
		registry:     registry,
		received:     received,
		published:    published,
		inFlight:     inFlight,
		promRegistry: promRegistry,
		provider:     provider,
	}
}

// IncReceived increments the sampled received counter.
func (s *Stats) IncReceived() {
	s.received.Inc(1)
}

// IncPublished increments the sampled published counter.
func (s *Stats) IncPublished() {
	s.published.Inc(1)
}

// SetInFlightSnapshot records the in-flight gate snapshot from spec §4.3
// step 3.
func (s *Stats) SetInFlightSnapshot(n int64) {
	s.inFlight.Update(n)
}

// Handler exposes the diagnostic-only, sampled-and-sometimes-reset view of
// these counters. Deliberately not mounted at "/metrics" — that path is
// reserved for the monotonic, spec-mandated instruments in internal/metrics.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{})
}

// Run implements the stats reporter of spec §4.4: every 2s it logs a debug
// line with received/published/approx-rate/in-flight, and if the counters
// haven't advanced since the previous sample (and aren't both zero), it
// zeroes its own local counters so the next burst starts from a clean
// baseline. It never touches the Prometheus counters in internal/metrics.
func (s *Stats) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	go s.runPrometheusBridge(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Stats) tick() {
	current := s.received.Count()
	currentPublished := s.published.Count()

	if current == 0 && s.lastSample == 0 {
		return
	}

	inFlight := s.inFlight.Value()
	log.WithFields(log.Fields{
		"received":  current,
		"published": currentPublished,
		"msg_per_s": (current - s.lastSample) / 2,
		"in_flight": inFlight,
	}).Debug("forwarding stats")

	if current == s.lastSample && current != 0 {
		log.Debug("resetting internal counters because no new messages were received")
		s.lastSample = 0
		s.received.Clear()
		s.published.Clear()
		return
	}

	s.lastSample = current
}

func (s *Stats) runPrometheusBridge(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.provider.UpdatePrometheusMetricsOnce(); err != nil {
				log.WithError(err).Warn("failed to update internal prometheus bridge")
			}
		}
	}
}
