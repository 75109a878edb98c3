package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testSecret is a JWT secret long enough to pass validation.
const testSecret = "0123456789abcdef0123456789abcdef"

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("api.port default: got %d, want 8080", cfg.API.Port)
	}
	if cfg.WebSocket.Path != "/relay" {
		t.Errorf("websocket.path default: got %q, want %q", cfg.WebSocket.Path, "/relay")
	}
	if cfg.Relay.DisconnectGrace != 120 {
		t.Errorf("relay.disconnect_grace default: got %d, want 120", cfg.Relay.DisconnectGrace)
	}
	if cfg.Relay.MaxSessionAge != 3600 {
		t.Errorf("relay.max_session_age default: got %d, want 3600", cfg.Relay.MaxSessionAge)
	}
	if !cfg.Database.WALMode {
		t.Error("database.wal_mode should default to true")
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt should default to disabled")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
api:
  port: 9090
relay:
  disconnect_grace: 60
  max_session_age: 7200
  redirect_url: "https://labs.example.com/home"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 9090 {
		t.Errorf("api.port: got %d, want 9090", cfg.API.Port)
	}
	if cfg.Relay.DisconnectGrace != 60 {
		t.Errorf("relay.disconnect_grace: got %d, want 60", cfg.Relay.DisconnectGrace)
	}
	if cfg.Relay.RedirectURL != "https://labs.example.com/home" {
		t.Errorf("relay.redirect_url: got %q", cfg.Relay.RedirectURL)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	path := writeConfigFile(t, `
site:
  id: site-001
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing JWT secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error should mention jwt_secret: %v", err)
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  jwt_secret: "too-short"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for short JWT secret")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  jwt_secret: "`+testSecret+`"
database:
  path: "./data/from-file.db"
`)

	t.Setenv("LABGATE_DATABASE_PATH", "/var/lib/labgate/override.db")
	t.Setenv("LABGATE_JWT_SECRET", strings.Repeat("s", 48))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/var/lib/labgate/override.db" {
		t.Errorf("database.path env override not applied: got %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != strings.Repeat("s", 48) {
		t.Error("jwt secret env override not applied")
	}
}

func TestValidateRelayLifecycleOrdering(t *testing.T) {
	path := writeConfigFile(t, `
relay:
  disconnect_grace: 600
  max_session_age: 300
auth:
  jwt_secret: "`+testSecret+`"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error when max_session_age < disconnect_grace")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout: got %v, want 30s", got)
	}
	if got := cfg.Relay.GetDisconnectGrace(); got != 2*time.Minute {
		t.Errorf("GetDisconnectGrace: got %v, want 2m", got)
	}
	if got := cfg.Relay.GetMaxSessionAge(); got != time.Hour {
		t.Errorf("GetMaxSessionAge: got %v, want 1h", got)
	}
	if got := cfg.Relay.GetReapInterval(); got != 30*time.Second {
		t.Errorf("GetReapInterval: got %v, want 30s", got)
	}
}
