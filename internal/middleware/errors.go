package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes
const (
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// Error messages shown to callers
const (
	MsgMethodNotAllowed   = "Method Not Allowed"
	MsgFieldsRequired     = "All fields are required"
	MsgServiceUnavailable = "OpenAI service is temporarily unavailable"
	MsgUpstreamTimeout    = "OpenAI service timed out"
	MsgInternal           = "Internal Server Error"
	MsgRateLimited        = "Too many requests"
)

// RespondError aborts the chain with an error body
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: message, Code: code})
}

// MethodNotAllowed sends a 405
func MethodNotAllowed(c *gin.Context) {
	RespondError(c, http.StatusMethodNotAllowed, "", MsgMethodNotAllowed)
}

// BadRequest sends a 400
func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, "", message)
}

// ServiceUnavailable sends a 502 for completion service outages
func ServiceUnavailable(c *gin.Context) {
	RespondError(c, http.StatusBadGateway, ErrCodeServiceUnavailable, MsgServiceUnavailable)
}

// GatewayTimeout sends a 504 when the completion service exceeded its deadline
func GatewayTimeout(c *gin.Context) {
	RespondError(c, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout, MsgUpstreamTimeout)
}

// InternalError sends a 500 without internal detail
func InternalError(c *gin.Context) {
	RespondError(c, http.StatusInternalServerError, "", MsgInternal)
}

// Recovery turns panics into the generic 500 body
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Recovered from panic",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", GetRequestID(c)),
		)
		InternalError(c)
	})
}
