package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/middleware"
	"github.com/funcgen/api/internal/models"
	"github.com/funcgen/api/internal/pipeline"
)

// StatusClientClosedRequest is written when the caller went away mid-request
const StatusClientClosedRequest = 499

// Generator runs one generation
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, meta pipeline.Meta) (*models.GenerationResult, error)
}

// GeneratorHandler serves the function generation endpoint
type GeneratorHandler struct {
	generator Generator
	logger    *zap.Logger
}

// NewGeneratorHandler creates a new generator handler
func NewGeneratorHandler(generator Generator, logger *zap.Logger) *GeneratorHandler {
	return &GeneratorHandler{generator: generator, logger: logger}
}

// Generate godoc
// @Summary Generate a function
// @Description Generate a function implementation, usage example and optional test cases from a signature and description
// @Tags generator
// @Accept json
// @Produce json
// @Param request body models.GenerationRequest true "Function to generate"
// @Success 200 {object} models.GenerationResult
// @Failure 400 {object} middleware.ErrorBody
// @Failure 405 {object} middleware.ErrorBody
// @Failure 429 {object} middleware.ErrorBody
// @Failure 500 {object} middleware.ErrorBody
// @Failure 502 {object} middleware.ErrorBody
// @Failure 504 {object} middleware.ErrorBody
// @Router /api/generator [post]
func (h *GeneratorHandler) Generate(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		middleware.MethodNotAllowed(c)
		return
	}

	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Rejected generator body", zap.Error(err))
		middleware.BadRequest(c, middleware.MsgFieldsRequired)
		return
	}

	userID, _ := middleware.GetUserID(c)
	meta := pipeline.Meta{
		RequestID:   middleware.GetRequestID(c),
		RequestedBy: userID,
	}

	result, err := h.generator.Generate(c.Request.Context(), req, meta)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *GeneratorHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		middleware.BadRequest(c, middleware.MsgFieldsRequired)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		middleware.ServiceUnavailable(c)
	case errors.Is(err, models.ErrUpstreamTimeout):
		middleware.GatewayTimeout(c)
	case errors.Is(err, models.ErrCanceled):
		c.AbortWithStatus(StatusClientClosedRequest)
	default:
		h.logger.Error("Generation failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		middleware.InternalError(c)
	}
}
