package kafkaadapter

import (
	"testing"

	kafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
)

func TestBuildConfigMapAppliesTuningDefaults(t *testing.T) {
	cfg := config.KafkaConfig{BootstrapServer: "broker", Port: 9092}

	configMap, err := buildConfigMap(cfg)
	if err != nil {
		t.Fatalf("buildConfigMap failed: %v", err)
	}

	assertConfigValue(t, configMap, "bootstrap.servers", "broker:9092")
	assertConfigValue(t, configMap, "message.timeout.ms", 12000)
	assertConfigValue(t, configMap, "max.in.flight.requests.per.connection", 500)
}

func TestBuildConfigMapOverlaysExtraProperties(t *testing.T) {
	cfg := config.KafkaConfig{
		BootstrapServer: "broker",
		Port:            9092,
		ExtraProperties: map[string]string{
			"message.timeout.ms": "30000",
			"compression.codec":  "snappy",
		},
	}

	configMap, err := buildConfigMap(cfg)
	if err != nil {
		t.Fatalf("buildConfigMap failed: %v", err)
	}

	assertConfigValue(t, configMap, "message.timeout.ms", "30000")
	assertConfigValue(t, configMap, "compression.codec", "snappy")
}

func TestBuildConfigMapRejectsUnknownProperty(t *testing.T) {
	cfg := config.KafkaConfig{
		BootstrapServer: "broker",
		Port:            9092,
		ExtraProperties: map[string]string{
			"": "blank key is not a valid librdkafka property",
		},
	}

	if _, err := buildConfigMap(cfg); err == nil {
		t.Errorf("expected error for invalid config property")
	}
}

func assertConfigValue(t *testing.T, m *kafka.ConfigMap, key string, want kafka.ConfigValue) {
	t.Helper()
	got, err := m.Get(key, nil)
	if err != nil {
		t.Fatalf("missing config key %q: %v", key, err)
	}
	if got != want {
		t.Errorf("config key %q: expected %v, got %v", key, want, got)
	}
}
