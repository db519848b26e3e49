package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the settings for logging, state persistence and the HTTP API.
type ServerConfig struct {
	ApiAddr        string   `json:"api_addr" yaml:"api_addr"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	LogFormat      string   `json:"log_format" yaml:"log_format"`
	StatePath      string   `json:"state_path" yaml:"state_path"`
	MetricsEnabled bool     `json:"metrics_enabled" yaml:"metrics_enabled"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
	APIKeys        []APIKey `json:"api_keys" yaml:"api_keys"`
}

// GeneratorConfig holds the defaults used for training and generation when a
// command or request does not override them.
type GeneratorConfig struct {
	DefaultDatabase string `json:"default_database" yaml:"default_database"`
	MaxLength       int    `json:"max_length" yaml:"max_length"`
	MaxTries        int    `json:"max_tries" yaml:"max_tries"`
	MinTokenLength  int    `json:"min_token_length" yaml:"min_token_length"`
	Verbose         bool   `json:"verbose" yaml:"verbose"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig    `json:"server_config" yaml:"server_config"`
	Generator *GeneratorConfig `json:"generator_config" yaml:"generator_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:        "127.0.0.1:7278",
		LogLevel:       "info",
		LogFormat:      "text",
		StatePath:      "./data/markovbot.chain",
		MetricsEnabled: true,
		MaxBodyBytes:   10 << 20,
	}
}

// DefaultGeneratorConfig creates a generator configuration with default values.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		DefaultDatabase: "default",
		MaxLength:       20,
		MaxTries:        100,
		MinTokenLength:  1,
		Verbose:         false,
	}
}

// isYAML reports whether the config at path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads the configuration from a JSON or YAML file at the given path.
// If the file doesn't exist, it creates one with default values. Environment
// variables prefixed with MARKOVBOT_ override the file afterwards.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := &Config{
		Server:    DefaultServerConfig(),
		Generator: DefaultGeneratorConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the bot can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			applyEnvOverrides(config)
			return config, config.Validate()
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	// Sections left out of the file fall back to defaults.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Generator == nil {
		config.Generator = DefaultGeneratorConfig()
	}

	applyEnvOverrides(config)
	return config, config.Validate()
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// applyEnvOverrides lets deployments adjust a config without editing the file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MARKOVBOT_API_ADDR"); v != "" {
		config.Server.ApiAddr = v
	}
	if v := os.Getenv("MARKOVBOT_LOG_LEVEL"); v != "" {
		config.Server.LogLevel = v
	}
	if v := os.Getenv("MARKOVBOT_LOG_FORMAT"); v != "" {
		config.Server.LogFormat = v
	}
	if v := os.Getenv("MARKOVBOT_STATE_PATH"); v != "" {
		config.Server.StatePath = v
	}
	if v := os.Getenv("MARKOVBOT_DEFAULT_DATABASE"); v != "" {
		config.Generator.DefaultDatabase = v
	}
	if v, err := strconv.ParseInt(os.Getenv("MARKOVBOT_MAX_BODY_BYTES"), 10, 64); err == nil {
		config.Server.MaxBodyBytes = v
	}
	if v, err := strconv.Atoi(os.Getenv("MARKOVBOT_MAX_LENGTH")); err == nil {
		config.Generator.MaxLength = v
	}
	if v, err := strconv.Atoi(os.Getenv("MARKOVBOT_MAX_TRIES")); err == nil {
		config.Generator.MaxTries = v
	}
}

// Validate checks the values that would otherwise only fail at generation time.
func (c *Config) Validate() error {
	if c.Generator.DefaultDatabase == "" {
		return fmt.Errorf("generator_config.default_database must not be empty")
	}
	if c.Generator.MaxLength < 1 {
		return fmt.Errorf("generator_config.max_length must be at least 1, got %d", c.Generator.MaxLength)
	}
	if c.Generator.MaxTries < 1 {
		return fmt.Errorf("generator_config.max_tries must be at least 1, got %d", c.Generator.MaxTries)
	}
	if c.Generator.MinTokenLength < 1 {
		return fmt.Errorf("generator_config.min_token_length must be at least 1, got %d", c.Generator.MinTokenLength)
	}
	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server_config.max_body_bytes must be at least 1, got %d", c.Server.MaxBodyBytes)
	}
	for i, k := range c.Server.APIKeys {
		if raw, err := hex.DecodeString(k.KeyHash); err != nil || len(raw) != sha256.Size {
			return fmt.Errorf("server_config.api_keys[%d].key_hash must be a hex SHA-256 digest", i)
		}
		if len(k.Scopes) == 0 {
			return fmt.Errorf("server_config.api_keys[%d] has no scopes", i)
		}
		for _, scope := range k.Scopes {
			if _, ok := knownScopes[scope]; !ok {
				return fmt.Errorf("server_config.api_keys[%d] has unknown scope %q", i, scope)
			}
		}
	}
	return nil
}

// newLogger builds the application logger from the server config.
func newLogger(config *ServerConfig) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.ToLower(config.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
