// Package server assembles the HTTP surface: routes, middleware, and the
// listener lifecycle.
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/config"
	"github.com/medreflect/medreflect/internal/handlers"
)

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// New assembles the routed server. Pass nil gatherer to skip the /metrics
// endpoint.
func New(cfg config.ServerConfig, reflection *handlers.ReflectionHandler, health *handlers.HealthHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))
	if cfg.EnableCORS {
		engine.Use(CORS(cfg.CORSOrigins))
	}

	engine.GET("/health", health.Health)
	engine.GET("/api", health.Index)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api")
	{
		api.POST("/reflection", reflection.Submit)
		api.GET("/reflection/:session_id", reflection.Result)
		api.GET("/reflection/:session_id/stream", reflection.Stream)
		api.GET("/evaluation/:session_id", reflection.Evaluation)
		api.GET("/prioritization/:session_id", reflection.Prioritization)
		api.GET("/sessions", reflection.List)
	}

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Engine exposes the routed engine for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
