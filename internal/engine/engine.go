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

// Package engine implements the forwarding core: for every inbound MQTT
// publish it finds the forwarding rules whose topic filter matches, waits
// for Kafka backpressure to clear, dispatches one Kafka produce per match
// and only acknowledges the MQTT message once every match has been
// delivered.
package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
	"github.com/trivago/mqtt-kafka-bridge/internal/metrics"
	"github.com/trivago/mqtt-kafka-bridge/internal/mqttsession"
	"github.com/trivago/mqtt-kafka-bridge/internal/stats"
)

// inFlightLimit is the busy-poll threshold from spec §4.3: once librdkafka
// reports this many unacknowledged in-flight requests, new dispatch work
// waits rather than adding to the backlog.
const inFlightLimit = 1000

const backpressurePoll = 10 * time.Millisecond

// transportErrorBackoff is the pause after a dropped connection, so a tight
// reconnect loop doesn't spin the event consumer (spec §4.2).
const transportErrorBackoff = time.Second

// Rule is one mqtt-topic-filter-to-kafka-topic forwarding mapping.
type Rule struct {
	Name            string
	MQTTTopicFilter string
	KafkaTopic      string
	WrapAsJSON      bool
}

// RulesFromConfig adapts the configuration model into the engine's own rule
// type, keeping the two packages independently testable.
func RulesFromConfig(rules []config.ForwardingRule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{
			Name:            r.Name,
			MQTTTopicFilter: r.MQTTTopicFilter,
			KafkaTopic:      r.KafkaTopic,
			WrapAsJSON:      r.WrapAsJSON,
		}
	}
	return out
}

// kafkaProducer is the subset of kafkaadapter.Adapter the engine depends on.
type kafkaProducer interface {
	Produce(topic, key string, payload []byte) error
	InFlightCount() int
}

// acker is the subset of mqttsession.Session the engine depends on for
// acknowledging a delivered message.
type acker interface {
	Ack(mqttsession.Event)
}

type sessionAcker struct{}

func (sessionAcker) Ack(e mqttsession.Event) { e.Ack() }

// wrappedPayload mirrors the envelope a "wrap_as_json" rule produces: the
// source topic alongside the base64-encoded raw payload.
type wrappedPayload struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Engine is the forwarding core.
type Engine struct {
	rules     []Rule
	kafka     kafkaProducer
	metrics   *metrics.Registry
	stats     *stats.Stats
	ack       acker
	connected bool
}

// New builds an Engine over the given rule set.
func New(rules []Rule, kafka kafkaProducer, metricsReg *metrics.Registry, statsReg *stats.Stats) *Engine {
	return &Engine{
		rules:   rules,
		kafka:   kafka,
		metrics: metricsReg,
		stats:   statsReg,
		ack:     sessionAcker{},
	}
}

// matchingRules returns every rule whose MQTT topic filter matches topic.
func (e *Engine) matchingRules(topic string) []Rule {
	var matched []Rule
	for _, r := range e.rules {
		if topicMatches(r.MQTTTopicFilter, topic) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Run drains events until the channel closes. Each EventPublish is
// dispatched to its own goroutine so a slow Kafka produce never blocks the
// next MQTT message from being read off the wire. The other event classes
// drive the connection-state machine of spec §4.2/§4.3.
func (e *Engine) Run(events <-chan mqttsession.Event) {
	for evt := range events {
		switch evt.Kind {
		case mqttsession.EventPublish:
			e.handlePublish(evt)
		case mqttsession.EventConnected:
			e.connected = true
			e.metrics.SetConnected(true)
			log.Info("Reconnected")
		case mqttsession.EventSubAck:
			log.Info("Subscribed")
		case mqttsession.EventTransportError:
			wasConnected := e.connected
			e.connected = false
			e.metrics.SetConnected(false)
			if wasConnected {
				log.WithError(evt.Err).Warn("mqtt transport error")
			}
			// Prevents a tight reconnect loop; the client library is
			// expected to reconnect on its own on the next poll.
			time.Sleep(transportErrorBackoff)
		default:
			// Any other event class is ignored.
		}
	}
}

func (e *Engine) handlePublish(evt mqttsession.Event) {
	e.metrics.ReceivedFor(evt.Topic)
	e.stats.IncReceived()

	matches := e.matchingRules(evt.Topic)

	for e.kafka.InFlightCount() >= inFlightLimit {
		time.Sleep(backpressurePoll)
	}
	e.stats.SetInFlightSnapshot(int64(e.kafka.InFlightCount()))

	topic, payload := evt.Topic, evt.Payload
	go e.dispatch(evt, topic, payload, matches)
}

func (e *Engine) dispatch(evt mqttsession.Event, topic string, payload []byte, matches []Rule) {
	var wrapped []byte
	wrapOnce := false

	for _, rule := range matches {
		out := payload
		if rule.WrapAsJSON {
			if !wrapOnce {
				wrapped = wrapPayload(topic, payload)
				wrapOnce = true
			}
			out = wrapped
		}

		if err := e.kafka.Produce(rule.KafkaTopic, topic, out); err != nil {
			panic(fmt.Errorf("engine: could not publish to kafka, aborting: %w", err))
		}
		e.metrics.PublishedFor(rule.KafkaTopic)
		e.stats.IncPublished()
	}

	// The classic paho client's Ack() writes the PUBACK without reporting
	// delivery failure, unlike the originating client library's fallible
	// ack call; there is nothing here to retry against.
	e.ack.Ack(evt)
}

// wrapPayload builds the base64-encoded JSON envelope for wrap_as_json
// rules.
func wrapPayload(topic string, payload []byte) []byte {
	obj := wrappedPayload{
		Topic:   topic,
		Payload: base64.StdEncoding.EncodeToString(payload),
	}
	out, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Errorf("engine: could not marshal wrapped payload: %w", err))
	}
	return out
}
