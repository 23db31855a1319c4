package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName identifies this service in health and index responses.
const ServiceName = "medreflect"

// HealthHandler serves liveness and the API index.
type HealthHandler struct {
	version   string
	startTime time.Time
}

// NewHealthHandler creates the handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now()}
}

// Health reports service liveness.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	})
}

// Index lists the available endpoints.
// GET /api
func (h *HealthHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": h.version,
		"endpoints": gin.H{
			"submit":         "POST /api/reflection",
			"result":         "GET /api/reflection/:session_id",
			"stream":         "GET /api/reflection/:session_id/stream",
			"evaluation":     "GET /api/evaluation/:session_id",
			"prioritization": "GET /api/prioritization/:session_id",
			"sessions":       "GET /api/sessions",
			"health":         "GET /health",
			"metrics":        "GET /metrics",
		},
	})
}
