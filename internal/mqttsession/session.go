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

// Package mqttsession wraps paho.mqtt.golang's callback-driven client into
// the pull-based event stream spec §4.2 describes: callers read Events off
// a channel rather than registering handlers themselves.
package mqttsession

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
)

// EventKind distinguishes the variants of Event.
type EventKind int

const (
	// EventConnected fires once the broker handshake (ConnAck) completes,
	// on the initial connect and on every subsequent reconnect.
	EventConnected EventKind = iota
	// EventSubAck fires once the broker has acknowledged a subscription
	// request.
	EventSubAck
	// EventTransportError fires when the connection drops, whether due to
	// an I/O failure or the broker closing the connection. MQTT 3.1.1 has
	// no broker-to-client DISCONNECT packet, so paho reports both cases
	// through the same callback; both are handled as a transport error.
	EventTransportError
	// EventPublish carries an inbound message awaiting dispatch and ack.
	EventPublish
)

// Event is a single item from the session's event stream.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error

	message mqtt.Message
}

// Ack acknowledges the underlying MQTT message. Only valid on EventPublish
// events; a no-op otherwise.
func (e Event) Ack() {
	if e.message != nil {
		e.message.Ack()
	}
}

// Session owns the MQTT connection and republishes its callbacks onto a
// channel so the rest of the engine can treat it like a pollable event loop,
// mirroring the original service's EventLoop::poll() model.
type Session struct {
	client mqtt.Client
	events chan Event
}

// New builds client options from cfg but does not connect yet.
func New(cfg config.MQTTConfig) (*Session, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession())
	opts.SetAutoAckDisabled(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOrderMatters(false)

	if cfg.Credentials != nil {
		opts.SetUsername(cfg.Credentials.Username)
		opts.SetPassword(cfg.Credentials.Password)
	}

	if cfg.TLS != nil {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	s := &Session{
		events: make(chan Event, 256),
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.events <- Event{Kind: EventConnected}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.events <- Event{Kind: EventTransportError, Err: err}
	})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		s.events <- Event{
			Kind:    EventPublish,
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			message: msg,
		}
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// buildTLSConfig loads the CA certificate whenever ca_cert is set (leaving
// RootCAs nil otherwise), and the client certificate/key pair only when both
// were configured (config.Validate already enforced both-or-neither).
func buildTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("mqttsession: failed to read ca_cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("mqttsession: ca_cert %s contains no usable certificates", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("mqttsession: failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect blocks until the initial connection succeeds or fails.
func (s *Session) Connect() error {
	token := s.client.Connect()
	token.Wait()
	return token.Error()
}

// Subscribe registers interest in every rule's MQTT topic filter in a single
// SUBSCRIBE packet, all at QoS 2 per spec §4.1.
func (s *Session) Subscribe(filters []string) error {
	subs := make(map[string]byte, len(filters))
	for _, f := range filters {
		subs[f] = 2
	}
	token := s.client.SubscribeMultiple(subs, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	s.events <- Event{Kind: EventSubAck}
	return nil
}

// Events returns the channel of inbound session events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Disconnect closes the connection, waiting up to quiesce for in-flight work
// to drain.
func (s *Session) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}
