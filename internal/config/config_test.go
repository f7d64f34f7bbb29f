package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "cadabra.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSuccess(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, t.TempDir(), `
host = "0.0.0.0"
port = 9000
db_path = ":memory:"
log_level = "debug"
cors_enabled = false
lru_capacity = 50
schema_path = "schema.sql"
`)

	result, err := Load(configPath, LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}

	want := Config{
		Host:        "0.0.0.0",
		Port:        9000,
		DBPath:      ":memory:",
		LogLevel:    "debug",
		CORSEnabled: false,
		LRUCapacity: 50,
		SchemaPath:  "schema.sql",
	}
	if diff := cmp.Diff(want, result.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultsFillGaps(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, t.TempDir(), `port = 9100`)

	result, err := Load(configPath, LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if result.Config.Port != 9100 {
		t.Errorf("Port = %d, want 9100", result.Config.Port)
	}
	if result.Config.Host != DefaultHost {
		t.Errorf("Host = %q, want default %q", result.Config.Host, DefaultHost)
	}
	if result.Config.DBPath != DefaultDB {
		t.Errorf("DBPath = %q, want default %q", result.Config.DBPath, DefaultDB)
	}
	if !result.Config.CORSEnabled {
		t.Error("CORSEnabled = false, want default true")
	}
}

func TestLoadUnknownKeys(t *testing.T) {
	t.Parallel()

	content := `
port = 9000
bind_addr = "0.0.0.0"
`
	t.Run("warns by default", func(t *testing.T) {
		configPath := writeConfig(t, t.TempDir(), content)
		result, err := Load(configPath, LoadOptions{})
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "bind_addr") {
			t.Errorf("Warnings = %v, want one naming bind_addr", result.Warnings)
		}
	})

	t.Run("fails in strict mode", func(t *testing.T) {
		configPath := writeConfig(t, t.TempDir(), content)
		if _, err := Load(configPath, LoadOptions{Strict: true}); err == nil {
			t.Fatal("Load accepted unknown keys in strict mode")
		}
	})
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"port out of range", `port = 70000`},
		{"bad log level", `log_level = "loud"`},
		{"negative lru", `lru_capacity = -1`},
		{"empty db path", `db_path = ""`},
		{"malformed toml", `port = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, t.TempDir(), tt.content)
			if _, err := Load(configPath, LoadOptions{}); err == nil {
				t.Fatalf("Load accepted %q", tt.content)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml"), LoadOptions{}); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"HOST":         "10.0.0.5",
		"PORT":         "9400",
		"DB_PATH":      ":memory:",
		"LOG_LEVEL":    "warn",
		"CORS_ENABLED": "false",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv returned error: %v", err)
	}

	want := Config{
		Host:        "10.0.0.5",
		Port:        9400,
		DBPath:      ":memory:",
		LogLevel:    "warn",
		CORSEnabled: false,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "PORT", "http"},
		{"port out of range", "PORT", "0"},
		{"bad bool", "CORS_ENABLED", "maybe"},
		{"bad level", "LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			lookup := func(key string) (string, bool) {
				if key == tt.key {
					return tt.value, true
				}
				return "", false
			}
			if err := cfg.ApplyEnv(lookup); err == nil {
				t.Fatalf("ApplyEnv accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if got := cfg.Addr(); got != "127.0.0.1:8372" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8372")
	}
}
