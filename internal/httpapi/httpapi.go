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

// Package httpapi exposes the bridge's small external HTTP surface: a root
// identification endpoint, a liveness probe and the Prometheus exposition
// endpoint, per spec §7.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/trivago/mqtt-kafka-bridge/internal/metrics"
	"github.com/trivago/mqtt-kafka-bridge/internal/stats"
)

const serviceName = "mqtt-kafka-forwarding-service"

// NewMux builds the request multiplexer. metricsReg is mounted at /metrics;
// statsReg, if non-nil, is mounted at /internal-metrics as a diagnostic
// surface separate from the spec-mandated instruments.
func NewMux(metricsReg *metrics.Registry, statsReg *stats.Stats) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, serviceName)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", metricsReg.Handler())

	if statsReg != nil {
		mux.Handle("/internal-metrics", statsReg.Handler())
	}

	return mux
}

// Server wraps an http.Server bound to addr and serving NewMux's routes.
func Server(addr string, metricsReg *metrics.Registry, statsReg *stats.Stats) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewMux(metricsReg, statsReg),
	}
}
