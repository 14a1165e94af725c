// Command mock-oracle is an OpenAI-compatible chat completions server for
// local runs. Point OPENAI_BASE_URL at http://localhost:8001/v1.
//
// Failures are simulated with ?fail=<status|timeout|empty> and latency with
// ?delay=<ms>. MOCK_FAIL and MOCK_DELAY_MS set defaults for callers that
// cannot add query parameters.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

type server struct {
	logger       *zap.Logger
	defaultFail  string
	defaultDelay string
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	s := &server{
		logger:       logger,
		defaultFail:  os.Getenv("MOCK_FAIL"),
		defaultDelay: os.Getenv("MOCK_DELAY_MS"),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/chat/completions", s.handleChatCompletion)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	logger.Info("Mock completion service starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("mock completion service stopped", zap.Error(err))
	}
}

func (s *server) handleChatCompletion(c *gin.Context) {
	fail := c.DefaultQuery("fail", s.defaultFail)
	delay := c.DefaultQuery("delay", s.defaultDelay)

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError("invalid request body", "invalid_request_error", "bad_request"))
		return
	}

	s.logger.Info("Received request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.String("fail", fail),
		zap.String("delay", delay),
	)

	if ms, err := strconv.Atoi(delay); err == nil && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-c.Request.Context().Done():
			return
		}
	}

	if fail != "" {
		s.handleFailure(c, fail)
		return
	}

	var prompt string
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	c.JSON(http.StatusOK, completion(req.Model, cannedReply(prompt)))
}

func (s *server) handleFailure(c *gin.Context, failType string) {
	s.logger.Warn("Simulating failure", zap.String("type", failType))

	switch failType {
	case "timeout":
		// hold the connection until the caller gives up
		<-c.Request.Context().Done()
	case "empty":
		c.JSON(http.StatusOK, gin.H{"id": "chatcmpl-" + uuid.NewString(), "object": "chat.completion", "choices": []any{}})
	case "429":
		c.JSON(http.StatusTooManyRequests, apiError("Rate limit exceeded. Please retry after some time.", "rate_limit_error", "rate_limit_exceeded"))
	default:
		code, err := strconv.Atoi(failType)
		if err != nil || code < 400 || code > 599 {
			c.JSON(http.StatusInternalServerError, apiError("Unknown failure type", "server_error", "unknown"))
			return
		}
		c.JSON(code, apiError(fmt.Sprintf("Simulated error %d", code), "simulated_error", fmt.Sprintf("error_%d", code)))
	}
}

func apiError(message, typ, code string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": typ, "code": code}}
}

func completion(model, content string) gin.H {
	if model == "" {
		model = "gpt-4"
	}
	return gin.H{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []gin.H{{
			"index":         0,
			"message":       gin.H{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": gin.H{
			"prompt_tokens":     42,
			"completion_tokens": 64,
			"total_tokens":      106,
		},
	}
}

// cannedReply answers with all four sections, reusing the signature line
// that follows [IMPLEMENTATION] in the prompt when there is one.
func cannedReply(prompt string) string {
	name, args := "add", "x, y"
	if _, rest, ok := strings.Cut(prompt, "[IMPLEMENTATION]\n"); ok {
		sig, _, _ := strings.Cut(rest, "\n")
		if open := strings.Index(sig, "("); open > 0 && strings.HasSuffix(sig, ")") {
			name, args = sig[:open], sig[open+1:len(sig)-1]
		}
	}

	body := "return null;"
	if first, _, _ := strings.Cut(args, ","); strings.TrimSpace(first) != "" {
		body = "return " + strings.TrimSpace(first) + ";"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[DESCRIPTION]\nA placeholder implementation of %s returned by the mock completion service.\n", name)
	fmt.Fprintf(&b, "[IMPLEMENTATION]\nfunction %s(%s) {\n  %s\n}\n", name, args, body)
	fmt.Fprintf(&b, "[EXAMPLE]\nconsole.log(%s(%s));\n", name, args)
	if strings.Contains(prompt, "[TEST_CASES]") {
		fmt.Fprintf(&b, "[TEST_CASES]\nconsole.assert(typeof %s === \"function\");\n", name)
	}
	return b.String()
}
