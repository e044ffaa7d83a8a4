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

// Package supervisor wires the configuration, metrics, Kafka and MQTT
// layers together and drives the process lifecycle: connect, subscribe,
// forward until signalled, then drain and disconnect.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
	"github.com/trivago/mqtt-kafka-bridge/internal/engine"
	"github.com/trivago/mqtt-kafka-bridge/internal/httpapi"
	"github.com/trivago/mqtt-kafka-bridge/internal/kafkaadapter"
	"github.com/trivago/mqtt-kafka-bridge/internal/metrics"
	"github.com/trivago/mqtt-kafka-bridge/internal/mqttsession"
	"github.com/trivago/mqtt-kafka-bridge/internal/stats"
)

// Options configures a single run of the bridge.
type Options struct {
	ConfigPath string
	HTTPAddr   string
}

// Run loads configuration, connects to Kafka and MQTT, starts the HTTP
// surface and the stats reporter, then forwards messages until the process
// receives SIGINT or SIGTERM. It returns an error only for setup failures;
// once the forwarding loop is running, unrecoverable delivery failures are
// fatal (see internal/engine) and terminate the process directly, matching
// the originating service's abort-on-persistent-failure behavior.
func Run(opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	metricsReg := metrics.New()
	statsReg := stats.New()

	kafka, err := kafkaadapter.New(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	defer kafka.Close()

	session, err := mqttsession.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	log.WithField("host", cfg.MQTT.Host).Info("connecting to mqtt broker")
	if err := session.Connect(); err != nil {
		return fmt.Errorf("supervisor: failed to connect to mqtt broker: %w", err)
	}
	// The initial ConnAck and every later reconnect/drop are reported as
	// session events; the engine is the sole writer of the connection gauge
	// once it starts consuming them below.

	rules := engine.RulesFromConfig(cfg.Forwarding)
	filters := make([]string, len(rules))
	for i, r := range rules {
		filters[i] = r.MQTTTopicFilter
	}

	log.WithField("filters", filters).Info("subscribing to mqtt topics")
	if err := session.Subscribe(filters); err != nil {
		return fmt.Errorf("supervisor: failed to subscribe: %w", err)
	}

	httpServer := httpapi.Server(opts.HTTPAddr, metricsReg, statsReg)
	go func() {
		log.WithField("addr", opts.HTTPAddr).Info("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go statsReg.Run(ctx)

	eng := engine.New(rules, kafka, metricsReg, statsReg)
	go eng.Run(session.Events())

	<-ctx.Done()
	log.Info("shutdown signal received, disconnecting")

	session.Disconnect(250)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to cleanly shut down http server")
	}

	return nil
}
