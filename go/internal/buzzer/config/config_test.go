package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buzzer.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":3010" {
		t.Errorf("expected default addr :3010, got %q", cfg.Server.Addr)
	}
	if cfg.MaxTimer() != time.Hour {
		t.Errorf("expected max timer 1h, got %v", cfg.MaxTimer())
	}
	if cfg.NATS.Enabled {
		t.Error("expected NATS disabled by default")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
websocket:
  ping_interval: 5s
  read_timeout: 30s
session:
  max_timer_seconds: 120
nats:
  enabled: true
  url: nats://file:4222
log:
  level: debug
`)
	t.Setenv("BUZZER_NATS_URL", "nats://env:4222")
	t.Setenv("BUZZER_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr from file, got %q", cfg.Server.Addr)
	}
	if cfg.WebSocket.PingInterval != 5*time.Second || cfg.WebSocket.ReadTimeout != 30*time.Second {
		t.Errorf("unexpected websocket durations %+v", cfg.WebSocket)
	}
	if cfg.WebSocket.WriteTimeout != 10*time.Second {
		t.Errorf("expected default write timeout to survive, got %v", cfg.WebSocket.WriteTimeout)
	}
	if cfg.Session.MaxTimerSeconds != 120 {
		t.Errorf("expected max timer 120, got %d", cfg.Session.MaxTimerSeconds)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("expected env to override file, got %q", cfg.NATS.URL)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "empty addr",
			body:    "server:\n  addr: \"\"\n",
			wantErr: "server.addr is required",
		},
		{
			name:    "ping slower than read timeout",
			body:    "websocket:\n  ping_interval: 90s\n",
			wantErr: "ping_interval must be shorter",
		},
		{
			name:    "nats without url",
			body:    "nats:\n  enabled: true\n  url: \"\"\n",
			wantErr: "nats.url is required",
		},
		{
			name:    "zero max timer",
			body:    "session:\n  max_timer_seconds: 0\n",
			wantErr: "max_timer_seconds must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Session.MaxTimerSeconds = 0
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error but got none")
	}
	for _, want := range []string{
		"server.addr is required",
		"max_timer_seconds must be positive",
		"nats.url is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %q", want, err.Error())
		}
	}
}
