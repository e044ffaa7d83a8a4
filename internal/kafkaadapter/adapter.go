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

// Package kafkaadapter wraps a librdkafka-backed producer with the
// bounded-retry produce loop and in-flight accounting spec §4.3 and §5
// require.
package kafkaadapter

import (
	"fmt"
	"time"

	kafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
)

const (
	produceAttempts = 5
	produceTimeout  = time.Second
	metadataTimeout = 5 * time.Second
)

// Adapter wraps a librdkafka producer. Its zero value is not usable; build
// one with New.
type Adapter struct {
	producer *kafka.Producer
}

// New constructs the librdkafka configuration from cfg, overlays any
// user-supplied extra properties and validates reachability with a metadata
// request before returning.
func New(cfg config.KafkaConfig) (*Adapter, error) {
	configMap, err := buildConfigMap(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("kafkaadapter: failed to create producer: %w", err)
	}

	if _, err := producer.GetMetadata(nil, true, int(metadataTimeout.Milliseconds())); err != nil {
		producer.Close()
		return nil, fmt.Errorf("kafkaadapter: broker unreachable: %w", err)
	}

	return &Adapter{producer: producer}, nil
}

// buildConfigMap assembles the librdkafka property map, overlaying the
// user-supplied extra properties on top of the tuning defaults from
// original_source/src/kafka.rs.
func buildConfigMap(cfg config.KafkaConfig) (*kafka.ConfigMap, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":                    cfg.BootstrapServers(),
		"message.timeout.ms":                   12000,
		"max.in.flight.requests.per.connection": 500,
	}

	for key, value := range cfg.ExtraProperties {
		if key == "" {
			return nil, fmt.Errorf("kafkaadapter: invalid config property %q: empty key", key)
		}
		if err := configMap.SetKey(key, value); err != nil {
			return nil, fmt.Errorf("kafkaadapter: invalid config property %q: %w", key, err)
		}
	}

	return configMap, nil
}

// InFlightCount reports the number of messages currently in librdkafka's
// internal queues, the gate spec §4.3 checks before accepting new work.
func (a *Adapter) InFlightCount() int {
	return a.producer.Len()
}

// Produce publishes payload to topic keyed by key, retrying up to
// produceAttempts times with a produceTimeout wait for a delivery report
// each attempt. It returns the last delivery error after exhausting
// retries.
func (a *Adapter) Produce(topic, key string, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < produceAttempts; attempt++ {
		// Each attempt gets its own delivery channel: librdkafka may still
		// deliver a stale report after a timed-out attempt, and a shared
		// channel would let that report be mistaken for the next one's.
		deliveryChan := make(chan kafka.Event, 1)

		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
			Key:            []byte(key),
			Value:          payload,
		}

		if err := a.producer.Produce(msg, deliveryChan); err != nil {
			lastErr = err
			a.producer.Poll(0)
			continue
		}

		select {
		case evt := <-deliveryChan:
			report := evt.(*kafka.Message)
			if report.TopicPartition.Error != nil {
				lastErr = report.TopicPartition.Error
				a.producer.Poll(0)
				continue
			}
			return nil
		case <-time.After(produceTimeout):
			lastErr = fmt.Errorf("kafkaadapter: delivery report timed out after %s", produceTimeout)
			a.producer.Poll(0)
		}
	}

	return fmt.Errorf("kafkaadapter: failed to produce to %s after %d attempts: %w", topic, produceAttempts, lastErr)
}

// Close flushes outstanding messages and releases the producer.
func (a *Adapter) Close() {
	a.producer.Flush(int(produceTimeout.Milliseconds()))
	a.producer.Close()
}
