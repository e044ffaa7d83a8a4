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

// Package metrics exposes the process-wide Prometheus instruments the
// forwarding engine updates on every publish and every successful Kafka
// produce, and the connection-state gauge the forwarding engine sets from
// the MQTT session's connect and transport-error events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated prometheus.Registry (not the global default
// registry, so tests can build as many isolated instances as they need).
type Registry struct {
	registry *prometheus.Registry

	MQTTReceived   *prometheus.CounterVec
	KafkaPublished *prometheus.CounterVec
	MQTTConnected  prometheus.Gauge
}

// New builds and registers the three exported instruments from spec §6.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		MQTTReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwarding_mqtt_received",
			Help: "Number of messages received from mqtt",
		}, []string{"topic"}),
		KafkaPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwarding_kafka_published",
			Help: "Number of messages published to kafka",
		}, []string{"topic"}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forwarding_mqtt_connected",
			Help: "Is the connection to the MQTT broker active",
		}),
	}

	reg.MustRegister(r.MQTTReceived, r.KafkaPublished, r.MQTTConnected)
	return r
}

// Handler returns the OpenMetrics exposition handler for this registry,
// matching the Content-Type spec §6 requires.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ReceivedFor increments the per-topic received counter.
func (r *Registry) ReceivedFor(topic string) {
	r.MQTTReceived.WithLabelValues(topic).Inc()
}

// PublishedFor increments the per-topic published counter. The label is
// the Kafka destination topic, per spec §6.
func (r *Registry) PublishedFor(kafkaTopic string) {
	r.KafkaPublished.WithLabelValues(kafkaTopic).Inc()
}

// SetConnected updates the connection-state gauge.
func (r *Registry) SetConnected(connected bool) {
	if connected {
		r.MQTTConnected.Set(1)
		return
	}
	r.MQTTConnected.Set(0)
}
