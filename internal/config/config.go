// Package config loads and validates the cadabra configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/cadabra-cache/cadabra/internal/logging"
)

// Defaults.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8372
	DefaultDB   = "cadabra.db"
)

// Config mirrors the cadabra TOML schema. Load starts from Default and
// decodes the file over it, so keys absent from the file keep their defaults.
type Config struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	DBPath      string `toml:"db_path"`
	LogLevel    string `toml:"log_level"`
	CORSEnabled bool   `toml:"cors_enabled"`
	LRUCapacity int    `toml:"lru_capacity"`
	SchemaPath  string `toml:"schema_path"`
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	Strict bool
}

// Result wraps a loaded configuration alongside any non-fatal warnings.
type Result struct {
	Config   Config
	Warnings []string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		DBPath:      DefaultDB,
		LogLevel:    "info",
		CORSEnabled: true,
	}
}

// Load reads and validates a cadabra configuration file. Unknown keys warn,
// or fail in Strict mode.
func Load(path string, opts LoadOptions) (Result, error) {
	var res Result

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	unknownKeys, err := collectUnknownKeys(data)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if len(unknownKeys) > 0 {
		slices.Sort(unknownKeys)
		message := fmt.Sprintf("%s: unknown configuration keys: %s", path, strings.Join(unknownKeys, ", "))
		if opts.Strict {
			return res, errors.New(message)
		}
		res.Warnings = append(res.Warnings, message)
	}

	if err := cfg.Validate(); err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	res.Config = cfg
	return res, nil
}

// ApplyEnv overlays environment overrides. lookup is os.LookupEnv outside of
// tests. Environment takes precedence over every other source.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HOST"); ok {
		c.Host = v
	}
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := lookup("DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("CORS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CORS_ENABLED: %w", err)
		}
		c.CORSEnabled = enabled
	}
	return c.Validate()
}

// Validate checks field ranges and level names.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LRUCapacity < 0 {
		return fmt.Errorf("lru_capacity %d must not be negative", c.LRUCapacity)
	}
	return nil
}

// Addr joins host and port into a listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func collectUnknownKeys(data []byte) ([]string, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	known := map[string]struct{}{
		"host":         {},
		"port":         {},
		"db_path":      {},
		"log_level":    {},
		"cors_enabled": {},
		"lru_capacity": {},
		"schema_path":  {},
	}

	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}
