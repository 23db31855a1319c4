// medreflect runs the multi-agent reflection service: discussions between a
// clinical and an engineering persona are distilled into scored, ranked
// improvement needs, served over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/config"
	"github.com/medreflect/medreflect/internal/evaluation"
	"github.com/medreflect/medreflect/internal/events"
	"github.com/medreflect/medreflect/internal/handlers"
	"github.com/medreflect/medreflect/internal/llm"
	"github.com/medreflect/medreflect/internal/observability"
	"github.com/medreflect/medreflect/internal/reflection"
	"github.com/medreflect/medreflect/internal/runner"
	"github.com/medreflect/medreflect/internal/server"
	"github.com/medreflect/medreflect/internal/session"
	"github.com/medreflect/medreflect/internal/structured"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := config.Load()
	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			panic(err)
		}
	}

	logger := newLogger(cfg.Server.Mode)
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	gateway := llm.NewOpenAIGateway(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		logger.Named("llm"),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	parser := structured.NewParser(nil)

	var rtr reflection.Router
	switch cfg.Discussion.RouterStrategy {
	case "classifier":
		rtr = &reflection.ClassifierRouter{
			Gateway: gateway,
			RoleA:   reflection.ClinicalExpert,
			RoleB:   reflection.SystemsEngineer,
			Logger:  logger.Named("router"),
		}
	default:
		rtr = &reflection.AlternatingRouter{
			RoleA: reflection.ClinicalExpert,
			RoleB: reflection.SystemsEngineer,
		}
	}

	controller := reflection.NewController(
		reflection.ClinicalExpert,
		reflection.SystemsEngineer,
		reflection.NewTurnExecutor(gateway, logger.Named("executor")),
		rtr,
		reflection.NewExtractor(gateway, parser, logger.Named("extractor")),
		logger.Named("controller"),
	)
	evaluator := evaluation.NewEvaluator(gateway, parser, logger.Named("evaluator"))

	store := newStore(cfg.Redis, logger)
	bus := events.NewBus(nil)
	defer bus.Close()
	metrics := observability.New(prometheus.DefaultRegisterer)

	run := runner.New(runner.Config{
		Workers:    cfg.Runner.Workers,
		QueueSize:  cfg.Runner.QueueSize,
		RunTimeout: cfg.Runner.RunTimeout,
	}, controller, evaluator, store, bus, metrics, logger.Named("runner"))
	run.Start()

	reflectionHandler := handlers.NewReflectionHandler(
		run, store, bus,
		cfg.Discussion.DefaultMaxRounds,
		cfg.Discussion.MaxRoundsLimit,
		logger.Named("handlers"),
	)
	healthHandler := handlers.NewHealthHandler(version)

	srv := server.New(cfg.Server, reflectionHandler, healthHandler, prometheus.DefaultGatherer, logger.Named("server"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	run.Stop()
	logger.Info("stopped")
}

func newLogger(mode string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if mode == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	return logger
}

func newStore(cfg config.RedisConfig, logger *zap.Logger) session.Store {
	if !cfg.Enabled {
		return session.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logger.Info("using redis session store", zap.String("addr", cfg.Addr))
	return session.NewRedisStore(client, cfg.SessionTTL)
}
