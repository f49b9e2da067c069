package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the HTTP client core and implements
// ConfigSource. It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := config.NewConfig(
//	    config.WithBaseURL("https://api.example.com"),
//	    config.WithMaxConcurrent(32),
//	)
type Config struct {
	baseURL       string
	timeouts      Timeouts
	defaultHeaders map[string]string
	maxConcurrent int

	Logging     LoggingConfig
	Development DevelopmentConfig

	logger Logger
}

// LoggingConfig configures the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" default:"info"`
	Format string `json:"format" default:"text"` // "text" or "json"
	Output string `json:"output" default:"stdout"`
}

// DevelopmentConfig toggles local-dev conveniences.
type DevelopmentConfig struct {
	DebugLogging bool `json:"debug_logging"`
}

// Option mutates a Config during NewConfig.
type Option func(*Config) error

// WithBaseURL sets the base URL requests are resolved against.
func WithBaseURL(url string) Option {
	return func(c *Config) error {
		c.baseURL = url
		return nil
	}
}

// WithDefaultTimeouts overrides the fallback per-stage timeouts.
func WithDefaultTimeouts(t Timeouts) Option {
	return func(c *Config) error {
		c.timeouts = t
		return nil
	}
}

// WithDefaultHeaders sets headers merged into every resolved request.
func WithDefaultHeaders(h map[string]string) Option {
	return func(c *Config) error {
		c.defaultHeaders = h
		return nil
	}
}

// WithMaxConcurrent overrides the scheduler's concurrency cap.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("%w: max concurrent must be >= 1", ErrInvalidConfiguration)
		}
		c.maxConcurrent = n
		return nil
	}
}

// WithLogger installs a pre-built logger instead of the ProductionLogger
// NewConfig would otherwise construct.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// fileConfig is the on-disk shape accepted by WithConfigFile, in both JSON
// and YAML. Timeouts are expressed in milliseconds to match the environment
// variables LoadFromEnv already reads (EnvConnectTimeout et al.).
type fileConfig struct {
	BaseURL        string            `json:"base_url" yaml:"base_url"`
	ConnectMs      int64             `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	ReadMs         int64             `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteMs        int64             `json:"write_timeout_ms" yaml:"write_timeout_ms"`
	DefaultHeaders map[string]string `json:"default_headers" yaml:"default_headers"`
	MaxConcurrent  int               `json:"max_concurrent" yaml:"max_concurrent"`
	Logging        LoggingConfig     `json:"logging" yaml:"logging"`
	Development    DevelopmentConfig `json:"development" yaml:"development"`
}

// WithConfigFile loads a JSON or YAML file (selected by extension) and
// overlays its fields onto the Config being built. File settings sit between
// environment variables and later functional options in NewConfig's priority
// order, so pass WithConfigFile before any Option meant to win over it.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		fc, err := loadConfigFile(path)
		if err != nil {
			return err
		}
		if fc.BaseURL != "" {
			c.baseURL = fc.BaseURL
		}
		if fc.ConnectMs > 0 {
			c.timeouts.Connect = time.Duration(fc.ConnectMs) * time.Millisecond
		}
		if fc.ReadMs > 0 {
			c.timeouts.Read = time.Duration(fc.ReadMs) * time.Millisecond
		}
		if fc.WriteMs > 0 {
			c.timeouts.Write = time.Duration(fc.WriteMs) * time.Millisecond
		}
		if len(fc.DefaultHeaders) > 0 {
			c.defaultHeaders = fc.DefaultHeaders
		}
		if fc.MaxConcurrent > 0 {
			c.maxConcurrent = fc.MaxConcurrent
		}
		if fc.Logging.Level != "" {
			c.Logging.Level = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			c.Logging.Format = fc.Logging.Format
		}
		if fc.Logging.Output != "" {
			c.Logging.Output = fc.Logging.Output
		}
		if fc.Development.DebugLogging {
			c.Development.DebugLogging = true
		}
		return nil
	}
}

// loadConfigFile reads and parses path, dispatching on its extension.
func loadConfigFile(path string) (*fileConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfiguration, ext)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path cleaned and extension-checked above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	fc := &fileConfig{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}
	}
	return fc, nil
}

// DefaultConfig returns the zero-environment defaults.
func DefaultConfig() *Config {
	return &Config{
		baseURL:        "",
		timeouts:       Timeouts{Connect: DefaultConnectTimeout, Read: DefaultReadTimeout, Write: DefaultWriteTimeout},
		defaultHeaders: map[string]string{},
		maxConcurrent:  DefaultMaxConcurrent,
		Logging:        LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Development:    DevelopmentConfig{},
	}
}

// LoadFromEnv overlays environment variables onto the current values.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.baseURL = v
	}
	if v := os.Getenv(EnvConnectTimeout); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.timeouts.Connect = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv(EnvReadTimeout); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.timeouts.Read = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv(EnvWriteTimeout); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.timeouts.Write = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.maxConcurrent = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if os.Getenv(EnvDevMode) == "true" {
		c.Development.DebugLogging = true
	}
	return nil
}

// Validate checks the final configuration for internal consistency.
func (c *Config) Validate() error {
	if c.maxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be >= 1", ErrInvalidConfiguration)
	}
	if c.timeouts.Connect <= 0 || c.timeouts.Read <= 0 || c.timeouts.Write <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// NewConfig builds a Config from defaults, then environment variables, then
// functional options, in that priority order (lowest to highest).
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Development, "httpcore")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// BaseURL implements ConfigSource.
func (c *Config) BaseURL() string { return c.baseURL }

// DefaultTimeouts implements ConfigSource.
func (c *Config) DefaultTimeouts() Timeouts { return c.timeouts }

// DefaultHeaders implements ConfigSource.
func (c *Config) DefaultHeaders() map[string]string {
	out := make(map[string]string, len(c.defaultHeaders))
	for k, v := range c.defaultHeaders {
		out[k] = v
	}
	return out
}

// Logger returns the logger resolved by NewConfig.
func (c *Config) Logger() Logger { return c.logger }

// MaxConcurrent returns the configured scheduler concurrency cap.
func (c *Config) MaxConcurrent() int { return c.maxConcurrent }

// ============================================================================
// ProductionLogger — layered, structured Logger implementation
// ============================================================================

// ProductionLogger is a dependency-free Logger: JSON output in production
// contexts, human-readable text for local development, level-gated Debug.
type ProductionLogger struct {
	level       string
	debug       bool
	component   string
	serviceName string
	format      string
	output      io.Writer
}

// NewProductionLogger builds a Logger from LoggingConfig/DevelopmentConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || strings.ToLower(logging.Level) == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

// WithComponent returns a logger that tags every entry with component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// GetComponent returns the component tag this logger was built with, if any.
func (p *ProductionLogger) GetComponent() string {
	return p.component
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, withTraceFields(ctx, fields))
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, withTraceFields(ctx, fields))
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, withTraceFields(ctx, fields))
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, withTraceFields(ctx, fields))
	}
}

// withTraceFields is a seam for attaching span/trace IDs pulled from ctx; it
// does not reach into otel itself so config stays free of a telemetry import
// cycle, but callers that carry span context in ctx values can be supported
// here without changing the Logger interface.
func withTraceFields(_ context.Context, fields map[string]interface{}) map[string]interface{} {
	return fields
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"message":   msg,
		}
		if p.component != "" {
			entry["component"] = p.component
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	tag := p.serviceName
	if p.component != "" {
		tag = p.serviceName + "." + p.component
	}
	var fieldStr strings.Builder
	for k, v := range fields {
		fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", timestamp, level, tag, msg, fieldStr.String())
}

// NoOpLogger discards everything; the zero-value default when no Logger is
// supplied and the caller has not asked for ProductionLogger either.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WithComponent(string) Logger { return NoOpLogger{} }
