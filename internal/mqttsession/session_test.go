package mqttsession

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trivago/mqtt-kafka-bridge/internal/config"
)

func TestNewAppliesCleanSessionFromEmptyClientID(t *testing.T) {
	s, err := New(config.MQTTConfig{Host: "localhost", Port: 1883, ClientID: ""})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reader := s.client.OptionsReader()
	if !reader.CleanSession() {
		t.Errorf("expected clean session for empty client id")
	}
}

func TestNewAppliesPersistentSessionForNonEmptyClientID(t *testing.T) {
	s, err := New(config.MQTTConfig{Host: "localhost", Port: 1883, ClientID: "bridge-1"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reader := s.client.OptionsReader()
	if reader.CleanSession() {
		t.Errorf("expected persistent session for non-empty client id")
	}
	if reader.ClientID() != "bridge-1" {
		t.Errorf("expected client id %q, got %q", "bridge-1", reader.ClientID())
	}
}

func TestEventAckIsNoOpWithoutUnderlyingMessage(t *testing.T) {
	e := Event{Kind: EventPublish, Topic: "a/b"}
	e.Ack() // must not panic
}

func writePEM(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestBuildTLSConfigRejectsUnreadableCACert(t *testing.T) {
	_, err := buildTLSConfig(&config.TLSConfig{CACert: "/no/such/file.pem"})
	if err == nil {
		t.Errorf("expected error for missing ca_cert file")
	}
}

func TestBuildTLSConfigRejectsMalformedCACert(t *testing.T) {
	path := writePEM(t, "ca.pem", "not a certificate")
	_, err := buildTLSConfig(&config.TLSConfig{CACert: path})
	if err == nil {
		t.Errorf("expected error for malformed ca_cert contents")
	}
}

func TestBuildTLSConfigWithoutCACertLeavesRootCAsNil(t *testing.T) {
	tlsConfig, err := buildTLSConfig(&config.TLSConfig{})
	if err != nil {
		t.Fatalf("buildTLSConfig failed: %v", err)
	}
	if tlsConfig.RootCAs != nil {
		t.Errorf("expected no root CA pool when ca_cert is unset")
	}
	if len(tlsConfig.Certificates) != 0 {
		t.Errorf("expected no client certificates configured")
	}
}
