package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefault_ProtocolValues(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 46980 {
		t.Errorf("Server.Port = %d, want 46980", cfg.Server.Port)
	}
	if cfg.Server.PingInterval != 15 {
		t.Errorf("Server.PingInterval = %d, want 15", cfg.Server.PingInterval)
	}
	if cfg.Server.PongTimeout != 10 {
		t.Errorf("Server.PongTimeout = %d, want 10", cfg.Server.PongTimeout)
	}
	if cfg.Poller.Interval != 25 {
		t.Errorf("Poller.Interval = %d, want 25", cfg.Poller.Interval)
	}
	if cfg.Server.Path != "/" {
		t.Errorf("Server.Path = %q, want /", cfg.Server.Path)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 19980
auth:
  password: "secret"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 19980 {
		t.Errorf("Server.Port = %d, want 19980", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Poller.Interval != 25 {
		t.Errorf("Poller.Interval = %d, want default 25", cfg.Poller.Interval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  password: "from-file"
`)

	t.Setenv("RELAYHUB_AUTH_PASSWORD", "from-env")
	t.Setenv("RELAYHUB_SERVER_PORT", "20001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.Password != "from-env" {
		t.Errorf("Auth.Password = %q, want from-env", cfg.Auth.Password)
	}
	if cfg.Server.Port != 20001 {
		t.Errorf("Server.Port = %d, want 20001", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "valid config passes",
			mutate:  func(_ *Config) {},
			wantErr: "",
		},
		{
			name: "missing password",
			mutate: func(cfg *Config) {
				cfg.Auth.Password = ""
			},
			wantErr: "auth.password is required",
		},
		{
			name: "port out of range",
			mutate: func(cfg *Config) {
				cfg.Server.Port = 70000
			},
			wantErr: "server.port",
		},
		{
			name: "zero poll interval",
			mutate: func(cfg *Config) {
				cfg.Poller.Interval = 0
			},
			wantErr: "poller.interval",
		},
		{
			name: "mqtt enabled without host",
			mutate: func(cfg *Config) {
				cfg.MQTT.Enabled = true
				cfg.MQTT.Broker.Host = ""
			},
			wantErr: "mqtt.broker.host",
		},
		{
			name: "influxdb enabled without url",
			mutate: func(cfg *Config) {
				cfg.InfluxDB.Enabled = true
				cfg.InfluxDB.Bucket = "hub"
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.Password = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	if got := cfg.GetPingInterval(); got != 15*time.Second {
		t.Errorf("GetPingInterval() = %v, want 15s", got)
	}
	if got := cfg.GetPongTimeout(); got != 10*time.Second {
		t.Errorf("GetPongTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetPollInterval(); got != 25*time.Second {
		t.Errorf("GetPollInterval() = %v, want 25s", got)
	}
}
