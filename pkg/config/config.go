// Package config loads service configuration from environment variables and
// an optional YAML file.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/table-translator/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	// HTTP
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxFileBytes    int64         `yaml:"max_file_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RedisURL enables shared rate limit tracking. Empty disables it.
	RedisURL string `yaml:"redis_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// Orchestration
	MaxBatchSize   int           `yaml:"max_batch_size"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	AllowPartial   bool          `yaml:"allow_partial"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`

	// Provider
	ProviderModel   string        `yaml:"provider_model"`
	ProviderBaseURL string        `yaml:"provider_base_url"`
	ProviderAPIKey  string        `yaml:"provider_api_key"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	ProviderRPS     float64       `yaml:"provider_rps"`

	// Retry. MaxRetries counts retries after the first attempt.
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:            "8080",
		CORSOrigins:     []string{"*"},
		MaxBodyBytes:    1 << 20,
		MaxFileBytes:    10 << 20,
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
		MaxBatchSize:    10,
		MaxConcurrency:  100,
		ProviderModel:   "gpt-4o-mini",
		ProviderBaseURL: "https://api.openai.com/v1",
		ProviderTimeout: 60 * time.Second,
		MaxRetries:      2,
		InitialBackoff:  1 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values; unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables read through getenv onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.setString("PORT", &cfg.Port)
	e.setList("CORS_ORIGINS", &cfg.CORSOrigins)
	e.setInt64("MAX_BODY_BYTES", &cfg.MaxBodyBytes)
	e.setInt64("MAX_FILE_BYTES", &cfg.MaxFileBytes)
	e.setDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	e.setString("REDIS_URL", &cfg.RedisURL)
	e.setString("LOG_LEVEL", &cfg.LogLevel)
	e.setBool("LOG_PRETTY", &cfg.LogPretty)
	e.setInt("MAX_BATCH_SIZE", &cfg.MaxBatchSize)
	e.setInt("MAX_CONCURRENCY", &cfg.MaxConcurrency)
	e.setBool("ALLOW_PARTIAL", &cfg.AllowPartial)
	e.setDuration("BATCH_TIMEOUT", &cfg.BatchTimeout)
	e.setString("PROVIDER_MODEL", &cfg.ProviderModel)
	e.setString("OPENAI_BASE_URL", &cfg.ProviderBaseURL)
	e.setString("OPENAI_API_KEY", &cfg.ProviderAPIKey)
	e.setDuration("PROVIDER_TIMEOUT", &cfg.ProviderTimeout)
	e.setFloat("PROVIDER_RPS", &cfg.ProviderRPS)
	e.setInt("MAX_RETRIES", &cfg.MaxRetries)
	e.setDuration("INITIAL_BACKOFF", &cfg.InitialBackoff)

	return e.err
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("port is required")
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("max_batch_size must be positive (got %d)", c.MaxBatchSize)
	case c.MaxConcurrency <= 0:
		return fmt.Errorf("max_concurrency must be positive (got %d)", c.MaxConcurrency)
	case c.MaxRetries < 0:
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	case c.ProviderRPS < 0:
		return fmt.Errorf("provider_rps must be >= 0 (got %v)", c.ProviderRPS)
	case c.ProviderModel == "":
		return fmt.Errorf("provider_model is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// envReader applies typed environment values and keeps the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
