// Package handlers exposes the reflection pipeline over HTTP.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/events"
	"github.com/medreflect/medreflect/internal/models"
	"github.com/medreflect/medreflect/internal/runner"
	"github.com/medreflect/medreflect/internal/session"
)

// ReflectionHandler serves the session lifecycle endpoints: submit, poll the
// three result stages, list, and stream progress.
type ReflectionHandler struct {
	runner         *runner.Runner
	store          session.Store
	bus            *events.Bus
	defaultRounds  int
	maxRoundsLimit int
	logger         *zap.Logger
}

// NewReflectionHandler creates the handler.
func NewReflectionHandler(r *runner.Runner, store session.Store, bus *events.Bus, defaultRounds, maxRoundsLimit int, logger *zap.Logger) *ReflectionHandler {
	if defaultRounds <= 0 {
		defaultRounds = 3
	}
	if maxRoundsLimit <= 0 {
		maxRoundsLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReflectionHandler{
		runner:         r,
		store:          store,
		bus:            bus,
		defaultRounds:  defaultRounds,
		maxRoundsLimit: maxRoundsLimit,
		logger:         logger,
	}
}

type submitRequest struct {
	Query     string `json:"query" binding:"required"`
	MaxRounds int    `json:"max_rounds"`
}

// Submit starts a reflection session in the background.
// POST /api/reflection
func (h *ReflectionHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if req.MaxRounds == 0 {
		req.MaxRounds = h.defaultRounds
	}
	if req.MaxRounds < 1 || req.MaxRounds > h.maxRoundsLimit {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("max_rounds must be between 1 and %d", h.maxRoundsLimit),
		})
		return
	}

	id, err := h.runner.Submit(c.Request.Context(), req.Query, req.MaxRounds)
	if err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is at capacity, try again later"})
			return
		}
		h.logger.Error("failed to submit session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": id,
		"status":     string(models.StatusQueued),
		"message":    "Reflection session started, poll the result endpoint or subscribe to the stream",
	})
}

// Result returns the discussion result once the session has completed.
// GET /api/reflection/:session_id
func (h *ReflectionHandler) Result(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}

	switch s.Status {
	case models.StatusQueued, models.StatusProcessing:
		c.JSON(http.StatusAccepted, gin.H{
			"session_id": s.ID,
			"status":     string(s.Status),
			"message":    "Session is still being processed",
		})
	case models.StatusError:
		c.JSON(http.StatusInternalServerError, gin.H{
			"session_id": s.ID,
			"status":     string(s.Status),
			"error":      s.Error,
			"result":     s.Result, // partial insight logs, when available
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"session_id": s.ID,
			"status":     string(s.Status),
			"result":     s.Result,
		})
	}
}

// Evaluation returns the evaluation stage of a completed session.
// GET /api/evaluation/:session_id
func (h *ReflectionHandler) Evaluation(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}
	if s.Status == models.StatusQueued || s.Status == models.StatusProcessing {
		c.JSON(http.StatusAccepted, gin.H{
			"session_id": s.ID,
			"status":     string(s.Status),
			"message":    "Session is still being processed",
		})
		return
	}
	if s.Evaluation == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation available for this session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID,
		"status":     string(s.Evaluation.Status),
		"evaluation": s.Evaluation.Result,
	})
}

// Prioritization returns the ranked needs of a completed session.
// GET /api/prioritization/:session_id
func (h *ReflectionHandler) Prioritization(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}
	if s.Status == models.StatusQueued || s.Status == models.StatusProcessing {
		c.JSON(http.StatusAccepted, gin.H{
			"session_id": s.ID,
			"status":     string(s.Status),
			"message":    "Session is still being processed",
		})
		return
	}
	if s.Prioritization == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prioritization available for this session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     s.ID,
		"status":         string(s.Prioritization.Status),
		"prioritization": s.Prioritization.Result,
	})
}

// List returns a compact view of every known session.
// GET /api/sessions
func (h *ReflectionHandler) List(c *gin.Context) {
	sessions, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"session_id":         s.ID,
			"status":             string(s.Status),
			"query":              truncateQuery(s.Query, 100),
			"max_rounds":         s.MaxRounds,
			"created_at":         s.CreatedAt,
			"completed_at":       s.CompletedAt,
			"has_evaluation":     s.Evaluation != nil,
			"has_prioritization": s.Prioritization != nil,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": out,
		"total":    len(out),
	})
}

// Stream replays a session's recorded progress events and then follows live
// events until the session completes or the client disconnects.
// GET /api/reflection/:session_id/stream
func (h *ReflectionHandler) Stream(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}

	// Subscribe before replay so no event falls between the stored log and
	// the live feed. Duplicates across the seam are possible; order within
	// each source is preserved.
	ch := h.bus.SubscribeSession(s.ID)
	defer h.bus.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	terminal := s.Status == models.StatusCompleted || s.Status == models.StatusError
	for _, ev := range s.Events {
		c.SSEvent("message", ev)
	}
	c.Writer.Flush()
	if terminal {
		return
	}

	clientGone := c.Request.Context().Done()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case ev, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("message", ev)
			return ev.EventType != "session_completed"
		}
	})
}

// loadSession resolves the :session_id path parameter, writing the 404
// response itself when the session does not exist.
func (h *ReflectionHandler) loadSession(c *gin.Context) (*models.Session, bool) {
	id := c.Param("session_id")
	s, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load session", zap.String("session_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	return s, true
}

func truncateQuery(q string, n int) string {
	if len(q) <= n {
		return q
	}
	return q[:n] + "..."
}
