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

// Package config holds the typed configuration model for the forwarding
// bridge: the MQTT endpoint, the Kafka endpoint and the ordered list of
// forwarding rules linking the two.
package config

import (
	"fmt"
	"io/ioutil"

	"github.com/drone/envsubst"
	yaml "gopkg.in/yaml.v2"
)

// Credentials holds username/password authentication for the MQTT broker.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig holds the certificate material for a TLS connection to the MQTT
// broker. ClientCert and ClientKey must be set together or not at all.
type TLSConfig struct {
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// clientAuthConfigured reports whether both halves of a client certificate
// were supplied.
func (t *TLSConfig) clientAuthConfigured() (bool, error) {
	if t == nil {
		return false, nil
	}
	hasCert := t.ClientCert != ""
	hasKey := t.ClientKey != ""
	if hasCert != hasKey {
		return false, fmt.Errorf("config: tls client_cert and client_key must both be set, or neither")
	}
	return hasCert && hasKey, nil
}

// MQTTConfig describes how to reach and authenticate against the MQTT broker.
type MQTTConfig struct {
	Host        string       `yaml:"host"`
	Port        int          `yaml:"port"`
	ClientID    string       `yaml:"client_id"`
	Credentials *Credentials `yaml:"credentials"`
	TLS         *TLSConfig   `yaml:"tls"`
}

// CleanSession reports whether this connection should use a clean (non
// persistent) MQTT session. An empty client id always implies a clean
// session, per spec.
func (m MQTTConfig) CleanSession() bool {
	return m.ClientID == ""
}

// Validate checks the invariants that can't be expressed in the struct tags.
func (m MQTTConfig) Validate() error {
	if m.Host == "" {
		return fmt.Errorf("config: mqtt.host must not be empty")
	}
	if _, err := m.TLS.clientAuthConfigured(); err != nil {
		return err
	}
	return nil
}

// KafkaConfig describes how to reach the Kafka cluster and any extra
// producer properties to forward verbatim to librdkafka.
type KafkaConfig struct {
	BootstrapServer string            `yaml:"bootstrap_server"`
	Port            int               `yaml:"port"`
	ExtraProperties map[string]string `yaml:"config"`
}

// BootstrapServers renders the host:port pair expected by
// "bootstrap.servers".
func (k KafkaConfig) BootstrapServers() string {
	return fmt.Sprintf("%s:%d", k.BootstrapServer, k.Port)
}

// Validate checks the invariants that can't be expressed in the struct tags.
func (k KafkaConfig) Validate() error {
	if k.BootstrapServer == "" {
		return fmt.Errorf("config: kafka.bootstrap_server must not be empty")
	}
	return nil
}

// ForwardingRule is an immutable mapping from one MQTT topic filter to one
// Kafka topic, with an optional JSON/base64 envelope. The YAML document
// nests the topic names under "mqtt:" and "kafka:" objects; UnmarshalYAML
// flattens that into the two fields the rest of the code base uses.
type ForwardingRule struct {
	Name            string
	MQTTTopicFilter string
	KafkaTopic      string
	WrapAsJSON      bool
}

// UnmarshalYAML implements yaml.Unmarshaler, flattening the nested
// "mqtt.topic" / "kafka.topic" document shape from spec §6.
func (r *ForwardingRule) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var doc struct {
		Name string `yaml:"name"`
		MQTT struct {
			Topic string `yaml:"topic"`
		} `yaml:"mqtt"`
		Kafka struct {
			Topic string `yaml:"topic"`
		} `yaml:"kafka"`
		WrapAsJSON bool `yaml:"wrap_as_json"`
	}
	if err := unmarshal(&doc); err != nil {
		return err
	}
	r.Name = doc.Name
	r.MQTTTopicFilter = doc.MQTT.Topic
	r.KafkaTopic = doc.Kafka.Topic
	r.WrapAsJSON = doc.WrapAsJSON
	return nil
}

// Validate checks that a rule is minimally well formed.
func (r ForwardingRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("config: forwarding rule missing name")
	}
	if r.MQTTTopicFilter == "" {
		return fmt.Errorf("config: forwarding rule %q missing mqtt.topic", r.Name)
	}
	if r.KafkaTopic == "" {
		return fmt.Errorf("config: forwarding rule %q missing kafka.topic", r.Name)
	}
	return nil
}

// Config is the root configuration document.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Forwarding []ForwardingRule `yaml:"forwarding"`
}

// Validate runs every sub-validator and fails fast on the first error, since
// configuration errors are fatal at startup regardless of which field is
// wrong.
func (c *Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if len(c.Forwarding) == 0 {
		return fmt.Errorf("config: at least one forwarding rule must be configured")
	}
	for i := range c.Forwarding {
		if err := c.Forwarding[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the YAML file at path, expands ${NAME} environment variable
// references and deserializes it into a Config. An env var that is
// referenced but unset renders as the empty string. A "${" that never
// closes is not left as literal text: envsubst rejects it and Load returns
// the expansion error.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config: failed to expand env vars in %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
