package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/api/auth"
	"github.com/BaSui01/researchflow/api/handlers"
	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/internal/server"
	"github.com/BaSui01/researchflow/internal/throttle"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/sources"
	"github.com/BaSui01/researchflow/workflow"
)

// Server wires configuration into the running service: event bus, research
// sources, LLM provider, throttle, workflow engine, HTTP handlers, and the
// two listeners (API and metrics).
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	redisClient *redis.Client
	bus         events.Bus
	collector   *metrics.Collector
	engine      *workflow.Engine

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer creates a server from loaded configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start builds all components and starts both listeners. It returns once
// the listeners are bound; use WaitForShutdown to block.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("researchflow", prometheus.DefaultRegisterer)

	if s.needsRedis() {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
	}

	bus, err := s.initBus()
	if err != nil {
		return fmt.Errorf("failed to init event bus: %w", err)
	}
	s.bus = bus

	limiter := s.initLimiter()
	s.engine = workflow.NewEngine(
		workflow.EngineConfig{
			MaxAttempts:    s.cfg.Workflow.MaxAttempts,
			AttemptBackoff: s.cfg.Workflow.AttemptBackoff,
			MinContexts:    s.cfg.Workflow.MinContexts,
			TopContexts:    s.cfg.Workflow.TopContexts,
			EnableAgents:   s.cfg.Workflow.EnableAgents,
		},
		s.bus,
		s.initSources(),
		s.initProvider(),
		nil, // throttling happens in the HTTP handler, before the run detaches
		s.collector,
		s.logger,
	)

	handler, err := s.buildRoutes(limiter)
	if err != nil {
		return err
	}

	if err := s.startHTTPServer(handler); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("events_backend", s.cfg.Events.Backend),
		zap.String("throttle_backend", s.cfg.Throttle.Backend),
	)
	return nil
}

func (s *Server) needsRedis() bool {
	return s.cfg.Events.Backend == "redis" || s.cfg.Throttle.Backend == "redis"
}

func (s *Server) initBus() (events.Bus, error) {
	busCfg := events.Config{
		SubscriberBuffer: s.cfg.Events.SubscriberBuffer,
		ReplayBuffer:     s.cfg.Events.ReplayBuffer,
		Retention:        s.cfg.Events.Retention,
	}
	if s.cfg.Events.Backend == "redis" {
		bus, err := events.NewRedisBus(s.redisClient, busCfg, s.logger)
		if err != nil {
			return nil, err
		}
		return bus.WithCollector(s.collector), nil
	}
	return events.NewMemoryBus(busCfg, s.logger).WithCollector(s.collector), nil
}

func (s *Server) initSources() []sources.Source {
	srcCfg := sources.Config{
		ArxivBaseURL:     s.cfg.Sources.ArxivBaseURL,
		GitHubBaseURL:    s.cfg.Sources.GitHubBaseURL,
		GitHubToken:      s.cfg.Sources.GitHubToken,
		WebSearchBaseURL: s.cfg.Sources.WebSearchBaseURL,
		WebSearchAPIKey:  s.cfg.Sources.WebSearchAPIKey,
		VectorDBBaseURL:  s.cfg.Sources.VectorDBBaseURL,
		VectorDBAPIKey:   s.cfg.Sources.VectorDBAPIKey,
		MaxResults:       s.cfg.Sources.MaxResults,
		Timeout:          s.cfg.Sources.Timeout,
	}
	if srcCfg.GitHubToken == "" {
		s.logger.Info("GitHub token not configured, GitHub source returns no results")
	}
	if srcCfg.WebSearchAPIKey == "" {
		s.logger.Info("Web search API key not configured, web search source returns no results")
	}
	return sources.All(srcCfg)
}

func (s *Server) initProvider() llm.Provider {
	if s.cfg.LLM.APIKey == "" {
		s.logger.Warn("LLM API key not configured, model calls will be rejected upstream",
			zap.String("provider", s.cfg.LLM.Provider))
	}
	return llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		ProviderName: s.cfg.LLM.Provider,
		APIKey:       s.cfg.LLM.APIKey,
		BaseURL:      s.cfg.LLM.BaseURL,
		DefaultModel: s.cfg.LLM.DefaultModel,
		Timeout:      s.cfg.LLM.Timeout,
	})
}

func (s *Server) initLimiter() throttle.Limiter {
	throttleCfg := throttle.Config{
		Limit:  s.cfg.Throttle.Limit,
		Period: s.cfg.Throttle.Period,
	}
	if s.cfg.Throttle.Backend == "redis" {
		return throttle.NewRedisLimiter(throttleCfg, s.redisClient)
	}
	return throttle.NewLocalLimiter(throttleCfg)
}

func (s *Server) buildRoutes(limiter throttle.Limiter) (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health(Version))

	researchHandler := handlers.NewResearchHandler(s.engine, limiter, s.logger)
	mux.HandleFunc("POST /v1/research", researchHandler.Submit)

	// Subscription endpoints require a signing secret. Without one the
	// service still accepts research submissions but cannot stream results.
	if s.cfg.Auth.Secret != "" {
		issuer, err := auth.NewIssuer(auth.Config{
			Secret: s.cfg.Auth.Secret,
			TTL:    s.cfg.Auth.TokenTTL,
			Issuer: s.cfg.Auth.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init token issuer: %w", err)
		}
		mux.HandleFunc("POST /v1/research/token", handlers.NewTokenHandler(issuer, s.logger).Issue)
		mux.HandleFunc("GET /v1/research/subscribe", handlers.NewSubscribeHandler(s.bus, issuer, s.logger).Subscribe)
	} else {
		s.logger.Warn("Auth secret not configured, subscription endpoints disabled")
	}

	return Chain(mux,
		Recovery(s.logger),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	), nil
}

func (s *Server) startHTTPServer(handler http.Handler) error {
	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCert:         s.cfg.Server.TLSCert,
		TLSKey:          s.cfg.Server.TLSKey,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a termination signal or listener error, then
// shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops both listeners and closes the event bus and Redis client.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("Event bus shutdown error", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis client shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
