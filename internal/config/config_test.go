package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
kia:
  username: user@example.com
  password: hunter2
mqtt:
  broker_url: tcp://localhost:1883
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Kia.ScanIntervalMinutes != DefaultScanIntervalMinutes {
		t.Errorf("scan interval = %d, want default %d", cfg.Kia.ScanIntervalMinutes, DefaultScanIntervalMinutes)
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("topic prefix = %q, want %q", cfg.MQTT.TopicPrefix, DefaultTopicPrefix)
	}
	if cfg.MQTT.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Errorf("discovery prefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, DefaultDiscoveryPrefix)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("http addr = %q, want %q", cfg.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.ScanInterval() != 10*time.Minute {
		t.Errorf("ScanInterval() = %s, want 10m", cfg.ScanInterval())
	}
	if cfg.DebounceCooldown() != 10*time.Second {
		t.Errorf("DebounceCooldown() = %s, want 10s", cfg.DebounceCooldown())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
kia:
  username: user@example.com
  password: hunter2
  scan_interval_minutes: 999
  debounce_seconds: 30
mqtt:
  broker_url: ssl://broker.local:8883
  topic_prefix: cars
http:
  addr: 127.0.0.1:9090
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kia.ScanIntervalMinutes != 999 {
		t.Errorf("scan interval = %d, want 999", cfg.Kia.ScanIntervalMinutes)
	}
	if cfg.DebounceCooldown() != 30*time.Second {
		t.Errorf("DebounceCooldown() = %s, want 30s", cfg.DebounceCooldown())
	}
	if cfg.MQTT.TopicPrefix != "cars" {
		t.Errorf("topic prefix = %q, want cars", cfg.MQTT.TopicPrefix)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9090" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"missing username", `
kia:
  password: hunter2
mqtt:
  broker_url: tcp://localhost:1883
`},
		{"missing password", `
kia:
  username: user@example.com
mqtt:
  broker_url: tcp://localhost:1883
`},
		{"missing broker", `
kia:
  username: user@example.com
  password: hunter2
`},
		{"interval too large", `
kia:
  username: user@example.com
  password: hunter2
  scan_interval_minutes: 1000
mqtt:
  broker_url: tcp://localhost:1883
`},
		{"negative interval", `
kia:
  username: user@example.com
  password: hunter2
  scan_interval_minutes: -5
mqtt:
  broker_url: tcp://localhost:1883
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.contents)); err == nil {
				t.Errorf("Load should fail for %s", tc.name)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KIA_BRIDGE_KIA_PASSWORD", "env-secret")
	t.Setenv("KIA_BRIDGE_HTTP_ADDR", "127.0.0.1:9999")

	// Password comes only from the environment; the file never mentions it.
	cfg, err := Load(writeConfig(t, `
kia:
  username: user@example.com
mqtt:
  broker_url: tcp://localhost:1883
http:
  addr: 0.0.0.0:8080
`))
	if err != nil {
		t.Fatalf("Load with env password: %v", err)
	}
	if cfg.Kia.Password != "env-secret" {
		t.Errorf("password = %q, want env-secret", cfg.Kia.Password)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9999" {
		t.Errorf("http addr = %q, want env override to win over the file", cfg.HTTP.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}
