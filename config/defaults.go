package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Log:      DefaultLogConfig(),
		Redis:    DefaultRedisConfig(),
		Events:   DefaultEventsConfig(),
		Workflow: DefaultWorkflowConfig(),
		LLM:      DefaultLLMConfig(),
		Sources:  DefaultSourcesConfig(),
		Auth:     DefaultAuthConfig(),
		Throttle: DefaultThrottleConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultEventsConfig returns the default event bus configuration.
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Backend:          "memory",
		SubscriberBuffer: 256,
		ReplayBuffer:     512,
		Retention:        10 * time.Minute,
	}
}

// DefaultWorkflowConfig returns the default pipeline configuration.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxAttempts:    2,
		AttemptBackoff: time.Second,
		MinContexts:    3,
		TopContexts:    10,
		EnableAgents:   true,
	}
}

// DefaultLLMConfig returns the default provider configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:     "openai",
		BaseURL:      "https://api.openai.com",
		DefaultModel: "gpt-4-turbo-preview",
		Timeout:      120 * time.Second,
	}
}

// DefaultSourcesConfig returns the default source configuration.
func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		MaxResults: 5,
		Timeout:    15 * time.Second,
	}
}

// DefaultAuthConfig returns the default token configuration. The signing
// secret has no default and must be provided.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		TokenTTL: 5 * time.Minute,
		Issuer:   "researchflow",
	}
}

// DefaultThrottleConfig returns the default throttle configuration.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Backend: "local",
		Limit:   10,
		Period:  time.Minute,
	}
}
