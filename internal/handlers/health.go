package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/funcgen/api/internal/oracle"
)

const (
	serviceName    = "funcgen-api"
	serviceVersion = "0.1.0"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// OracleProbe reports the local view of the completion service
type OracleProbe interface {
	Configured() bool
	Breaker() *oracle.Breaker
}

type namedCheck struct {
	name  string
	check Check
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks []namedCheck
	oracle OracleProbe
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(probe OracleProbe) *HealthHandler {
	return &HealthHandler{oracle: probe}
}

// AddCheck registers a dependency probe for DeepHealth. Only configured
// dependencies should be added.
func (h *HealthHandler) AddCheck(name string, check Check) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: serviceName,
		Version: serviceVersion,
	})
}

// DeepHealth godoc
// @Summary Readiness probe with dependency checks
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/deep [get]
func (h *HealthHandler) DeepHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks)+1)
	allHealthy := true

	for _, nc := range h.checks {
		if err := nc.check(ctx); err != nil {
			deps[nc.name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps[nc.name] = "healthy"
		}
	}

	if h.oracle != nil {
		switch state := h.oracle.Breaker().State(); {
		case !h.oracle.Configured():
			deps["oracle"] = "unhealthy: missing API key"
			allHealthy = false
		case state == oracle.BreakerOpen:
			deps["oracle"] = "unhealthy: circuit " + state.String()
			allHealthy = false
		default:
			deps["oracle"] = "healthy: circuit " + state.String()
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:       status,
		Service:      serviceName,
		Version:      serviceVersion,
		Dependencies: deps,
	})
}
