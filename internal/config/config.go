// Package config loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the chat generation service
type Config struct {
	// Server
	HTTPPort       int      `env:"HTTP_PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"json"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Model executable
	LlamaBinary       string        `env:"LLAMA_BINARY" envDefault:"llama-cli"`
	ModelPath         string        `env:"MODEL_PATH" envDefault:"models/phi-3-mini-4k-instruct-q4.gguf"`
	DefaultPreprompt  string        `env:"DEFAULT_PREPROMPT"`
	DefaultParamsFile string        `env:"DEFAULT_PARAMS_FILE"`
	StopScanMode      string        `env:"STOP_SCAN_MODE" envDefault:"chunk"`
	TerminateGrace    time.Duration `env:"TERMINATE_GRACE" envDefault:"2s"`

	// Auth
	APIKey    string        `env:"API_KEY"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"phi3chat"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Run history
	RunHistorySize int           `env:"RUN_HISTORY_SIZE" envDefault:"50"`
	RunHistoryTTL  time.Duration `env:"RUN_HISTORY_TTL" envDefault:"1h"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the struct tags cannot.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort))
	}
	if strings.TrimSpace(c.LlamaBinary) == "" {
		errs = append(errs, errors.New("LLAMA_BINARY is required"))
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		errs = append(errs, errors.New("MODEL_PATH is required"))
	}
	switch c.StopScanMode {
	case "chunk", "window":
	default:
		errs = append(errs, fmt.Errorf("STOP_SCAN_MODE must be chunk or window, got %q", c.StopScanMode))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.TerminateGrace <= 0 {
		errs = append(errs, errors.New("TERMINATE_GRACE must be positive"))
	}
	if c.RunHistorySize < 0 {
		errs = append(errs, errors.New("RUN_HISTORY_SIZE must not be negative"))
	}

	return errors.Join(errs...)
}

// AuthEnabled reports whether /v1 endpoints require credentials.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != "" || c.JWTSecret != ""
}
