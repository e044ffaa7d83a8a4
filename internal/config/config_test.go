package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

const baseConfig = `
mqtt:
  host: ${BROKER_HOST}
  port: 1883
  client_id: ""
kafka:
  bootstrap_server: kafka.local
  port: 9092
forwarding:
  - name: passthrough
    mqtt:
      topic: "s/+"
    kafka:
      topic: "K"
`

func TestLoadExpandsSetEnvVar(t *testing.T) {
	os.Setenv("BROKER_HOST", "example.net")
	defer os.Unsetenv("BROKER_HOST")

	path := writeTempConfig(t, baseConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTT.Host != "example.net" {
		t.Errorf("expected host %q, got %q", "example.net", cfg.MQTT.Host)
	}
}

func TestLoadExpandsUnsetEnvVarToEmpty(t *testing.T) {
	os.Unsetenv("BROKER_HOST")

	// The unset variable renders as an empty host, which Validate rejects;
	// an unexpanded "${BROKER_HOST}" would have passed as a non-empty host.
	path := writeTempConfig(t, baseConfig)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected Load to reject the empty host rendered from an unset variable")
	}
	if !strings.Contains(err.Error(), "mqtt.host must not be empty") {
		t.Errorf("expected empty mqtt.host error, got %v", err)
	}
}

func TestLoadWithoutPlaceholdersIsUnaffectedByTemplating(t *testing.T) {
	const noPlaceholders = `
mqtt:
  host: static-host
  port: 1883
kafka:
  bootstrap_server: kafka.local
  port: 9092
forwarding:
  - name: passthrough
    mqtt:
      topic: "s/+"
    kafka:
      topic: "K"
`
	path := writeTempConfig(t, noPlaceholders)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTT.Host != "static-host" {
		t.Errorf("expected host %q, got %q", "static-host", cfg.MQTT.Host)
	}
}

func TestCleanSessionFromEmptyClientID(t *testing.T) {
	cfg := MQTTConfig{ClientID: ""}
	if !cfg.CleanSession() {
		t.Errorf("expected clean session for empty client id")
	}

	cfg.ClientID = "bridge-1"
	if cfg.CleanSession() {
		t.Errorf("expected persistent session for non-empty client id")
	}
}

func TestTLSClientAuthBothOrNeither(t *testing.T) {
	tests := []struct {
		name    string
		tls     *TLSConfig
		wantErr bool
	}{
		{"nil tls", nil, false},
		{"neither cert nor key", &TLSConfig{CACert: "ca.pem"}, false},
		{"both cert and key", &TLSConfig{CACert: "ca.pem", ClientCert: "c.pem", ClientKey: "k.pem"}, false},
		{"cert without key", &TLSConfig{CACert: "ca.pem", ClientCert: "c.pem"}, true},
		{"key without cert", &TLSConfig{CACert: "ca.pem", ClientKey: "k.pem"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MQTTConfig{Host: "h", TLS: tt.tls}
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestLoadRejectsEmptyForwardingRules(t *testing.T) {
	const noRules = `
mqtt:
  host: h
  port: 1883
kafka:
  bootstrap_server: k
  port: 9092
forwarding: []
`
	path := writeTempConfig(t, noRules)
	_, err := Load(path)
	if err == nil {
		t.Errorf("expected error for empty forwarding rules")
	}
}
