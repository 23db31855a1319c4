// Package runner executes submitted reflection sessions in the background:
// discussion, then evaluation, then prioritization, with progress events
// recorded on the session and published on the bus.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/evaluation"
	"github.com/medreflect/medreflect/internal/events"
	"github.com/medreflect/medreflect/internal/models"
	"github.com/medreflect/medreflect/internal/observability"
	"github.com/medreflect/medreflect/internal/reflection"
	"github.com/medreflect/medreflect/internal/session"
)

// ErrQueueFull is returned by Submit when the work queue is saturated.
var ErrQueueFull = errors.New("runner queue is full")

// Config sizes the worker pool.
type Config struct {
	Workers    int
	QueueSize  int
	RunTimeout time.Duration // 0 = no deadline
}

// DefaultConfig returns defaults suitable for a small deployment.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  64,
		RunTimeout: 15 * time.Minute,
	}
}

type job struct {
	sessionID string
	query     string
	maxRounds int
}

// Runner owns the background pipeline. Each session is processed by exactly
// one worker; sessions share nothing but the store and the bus.
type Runner struct {
	config     Config
	controller *reflection.Controller
	evaluator  *evaluation.Evaluator
	store      session.Store
	bus        *events.Bus
	metrics    *observability.Metrics
	logger     *zap.Logger

	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a runner. Call Start before Submit.
func New(config Config, controller *reflection.Controller, evaluator *evaluation.Evaluator, store session.Store, bus *events.Bus, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		config:     config,
		controller: controller,
		evaluator:  evaluator,
		store:      store,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		jobs:       make(chan job, config.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("runner started", zap.Int("workers", r.config.Workers))
}

// Stop drains no further work and waits for in-flight sessions to finish
// their current cancellation point.
func (r *Runner) Stop() {
	r.once.Do(func() {
		r.cancel()
		close(r.jobs)
	})
	r.wg.Wait()
}

// Submit registers a queued session and enqueues it for processing,
// returning the generated session id.
func (r *Runner) Submit(ctx context.Context, query string, maxRounds int) (string, error) {
	id := uuid.New().String()
	s := &models.Session{
		ID:        id,
		Status:    models.StatusQueued,
		Query:     query,
		MaxRounds: maxRounds,
		CreatedAt: time.Now(),
	}
	if err := r.store.Create(ctx, s); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	select {
	case r.jobs <- job{sessionID: id, query: query, maxRounds: maxRounds}:
	default:
		markErr := r.store.Update(ctx, id, func(s *models.Session) {
			s.Status = models.StatusError
			s.Error = ErrQueueFull.Error()
		})
		if markErr != nil {
			r.logger.Warn("failed to mark rejected session", zap.Error(markErr))
		}
		return "", ErrQueueFull
	}

	if r.metrics != nil {
		r.metrics.SessionsSubmitted.Inc()
	}
	r.logger.Info("session queued",
		zap.String("session_id", id),
		zap.Int("max_rounds", maxRounds),
	)
	return id, nil
}

func (r *Runner) worker(n int) {
	defer r.wg.Done()
	logger := r.logger.With(zap.Int("worker", n))
	for j := range r.jobs {
		logger.Debug("picked up session", zap.String("session_id", j.sessionID))
		r.process(j)
	}
}

// process runs the full pipeline for one session.
func (r *Runner) process(j job) {
	start := time.Now()
	logger := r.logger.With(zap.String("session_id", j.sessionID))

	if err := r.store.Update(r.ctx, j.sessionID, func(s *models.Session) {
		s.Status = models.StatusProcessing
	}); err != nil {
		logger.Error("failed to mark session processing", zap.Error(err))
		return
	}

	runCtx := r.ctx
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(r.ctx, r.config.RunTimeout)
		defer cancel()
	}

	observer := r.sessionObserver(j.sessionID)
	result, err := r.controller.RunWithObserver(runCtx, j.query, j.maxRounds, observer)

	now := time.Now()
	if err != nil {
		logger.Error("reflection run failed", zap.Error(err))
		// Partial insight logs stay on the session for diagnostics.
		if uerr := r.store.Update(r.ctx, j.sessionID, func(s *models.Session) {
			s.Status = models.StatusError
			s.Error = err.Error()
			s.Result = result
			s.CompletedAt = &now
		}); uerr != nil {
			logger.Error("failed to record run failure", zap.Error(uerr))
		}
		if r.metrics != nil {
			r.metrics.SessionsFailed.Inc()
		}
		r.emitCompletion(j.sessionID, models.StatusError, err.Error())
		return
	}

	if uerr := r.store.Update(r.ctx, j.sessionID, func(s *models.Session) {
		s.Status = models.StatusCompleted
		s.Result = result
		s.CompletedAt = &now
	}); uerr != nil {
		logger.Error("failed to record run result", zap.Error(uerr))
	}

	if len(result.Needs.Needs) == 0 {
		logger.Warn("no needs extracted, skipping evaluation")
	} else {
		r.evaluate(j.sessionID, result.Needs, logger)
	}

	if r.metrics != nil {
		r.metrics.SessionsCompleted.Inc()
		r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	r.emitCompletion(j.sessionID, models.StatusCompleted, "Session completed")
	logger.Info("session completed", zap.Duration("elapsed", time.Since(start)))
}

// evaluate runs the scoring and ranking stages. The evaluator degrades to
// its deterministic fallback internally, so these stages always complete.
func (r *Runner) evaluate(sessionID string, needs models.NeedsCollection, logger *zap.Logger) {
	evalResult := r.evaluator.Evaluate(r.ctx, needs)
	prioritization := evaluation.Prioritize(evalResult)

	now := time.Now()
	if err := r.store.Update(r.ctx, sessionID, func(s *models.Session) {
		s.Evaluation = &models.EvaluationStage{
			Status:    models.StatusCompleted,
			Result:    &evalResult,
			CreatedAt: now,
		}
		s.Prioritization = &models.PrioritizationStage{
			Status:    models.StatusCompleted,
			Result:    &prioritization,
			CreatedAt: now,
		}
	}); err != nil {
		logger.Error("failed to record evaluation stages", zap.Error(err))
	}
}

// sessionObserver records every progress event on the session and publishes
// it to the bus. It is fire-and-forget: store errors are logged, never
// surfaced to the run.
func (r *Runner) sessionObserver(sessionID string) reflection.Observer {
	return func(eventType reflection.EventType, agent string, data map[string]any) {
		event := models.ProgressEvent{
			Timestamp: time.Now(),
			EventType: string(eventType),
			Agent:     agent,
			Data:      data,
		}
		if err := r.store.Update(r.ctx, sessionID, func(s *models.Session) {
			s.Events = append(s.Events, event)
		}); err != nil {
			r.logger.Debug("failed to record progress event", zap.Error(err))
		}
		if r.bus != nil {
			r.bus.Publish(events.NewEvent(sessionID, string(eventType), agent, data))
		}
		if r.metrics != nil {
			r.metrics.ProgressEvents.Inc()
		}
	}
}

// emitCompletion publishes the terminal event both to the session log and
// the bus so streaming readers observe an explicit end marker.
func (r *Runner) emitCompletion(sessionID string, status models.SessionStatus, message string) {
	data := map[string]any{
		"status":  string(status),
		"message": message,
	}
	observer := r.sessionObserver(sessionID)
	observer(reflection.EventSessionCompleted, "system", data)
}
