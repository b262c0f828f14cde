// Package config provides unified configuration loading for the research
// service: defaults, YAML file, then environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RESEARCHFLOW").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
	Events   EventsConfig   `yaml:"events" env:"EVENTS"`
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`
	LLM      LLMConfig      `yaml:"llm" env:"LLM"`
	Sources  SourcesConfig  `yaml:"sources" env:"SOURCES"`
	Auth     AuthConfig     `yaml:"auth" env:"AUTH"`
	Throttle ThrottleConfig `yaml:"throttle" env:"THROTTLE"`
}

// ServerConfig holds HTTP listener parameters.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	TLSCert         string        `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey          string        `yaml:"tls_key" env:"TLS_KEY"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs.
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// EventsConfig holds event bus parameters.
type EventsConfig struct {
	// Backend: memory, redis.
	Backend          string        `yaml:"backend" env:"BACKEND"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" env:"SUBSCRIBER_BUFFER"`
	ReplayBuffer     int           `yaml:"replay_buffer" env:"REPLAY_BUFFER"`
	Retention        time.Duration `yaml:"retention" env:"RETENTION"`
}

// WorkflowConfig holds pipeline parameters.
type WorkflowConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	AttemptBackoff time.Duration `yaml:"attempt_backoff" env:"ATTEMPT_BACKOFF"`
	MinContexts    int           `yaml:"min_contexts" env:"MIN_CONTEXTS"`
	TopContexts    int           `yaml:"top_contexts" env:"TOP_CONTEXTS"`
	EnableAgents   bool          `yaml:"enable_agents" env:"ENABLE_AGENTS"`
}

// LLMConfig holds model provider parameters.
type LLMConfig struct {
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	DefaultModel string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SourcesConfig holds research source parameters.
type SourcesConfig struct {
	ArxivBaseURL     string        `yaml:"arxiv_base_url" env:"ARXIV_BASE_URL"`
	GitHubBaseURL    string        `yaml:"github_base_url" env:"GITHUB_BASE_URL"`
	GitHubToken      string        `yaml:"github_token" env:"GITHUB_TOKEN"`
	WebSearchBaseURL string        `yaml:"websearch_base_url" env:"WEBSEARCH_BASE_URL"`
	WebSearchAPIKey  string        `yaml:"websearch_api_key" env:"WEBSEARCH_API_KEY"`
	VectorDBBaseURL  string        `yaml:"vectordb_base_url" env:"VECTORDB_BASE_URL"`
	VectorDBAPIKey   string        `yaml:"vectordb_api_key" env:"VECTORDB_API_KEY"`
	MaxResults       int           `yaml:"max_results" env:"MAX_RESULTS"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AuthConfig holds subscription token parameters.
type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	Issuer   string        `yaml:"issuer" env:"ISSUER"`
}

// ThrottleConfig holds per-user submission throttle parameters.
type ThrottleConfig struct {
	// Backend: local, redis.
	Backend string        `yaml:"backend" env:"BACKEND"`
	Limit   int           `yaml:"limit" env:"LIMIT"`
	Period  time.Duration `yaml:"period" env:"PERIOD"`
}

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RESEARCHFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
// Precedence: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file falls back to defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Workflow.MaxAttempts < 0 {
		errs = append(errs, "max_attempts must not be negative")
	}
	if c.Workflow.MinContexts <= 0 {
		errs = append(errs, "min_contexts must be positive")
	}
	switch c.Events.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown events backend %q", c.Events.Backend))
	}
	switch c.Throttle.Backend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown throttle backend %q", c.Throttle.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
