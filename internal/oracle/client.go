package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/funcgen/api/internal/models"
)

var (
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not configured")
	ErrEmptyReply    = errors.New("completion reply is empty")
	ErrCircuitOpen   = errors.New("circuit breaker is open")
)

// Config is the explicit configuration of the completion gateway
type Config struct {
	APIKey    string
	BaseURL   string // e.g. https://api.openai.com/v1
	Model     string
	MaxTokens int
	Timeout   time.Duration
	RPS       float64
	Burst     int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Client calls an OpenAI compatible chat completions endpoint. A call is
// attempted exactly once.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *Breaker
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the transport used for oracle calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker replaces the default circuit breaker. The breaker keeps its
// own logger and state hook.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a completion client
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}

	c := &Client{
		cfg: cfg,
		// per-call deadlines come from the context
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(logger)
	}
	return c
}

// Model returns the model identifier sent with every call
func (c *Client) Model() string {
	return c.cfg.Model
}

// Timeout is the per-call deadline applied to every completion
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Configured reports whether a credential is present
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Complete sends prompt as the single user message and returns the text of
// the first choice. Errors wrap one of the models failure kinds.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: %w", models.ErrInternal, ErrMissingAPIKey)
	}
	if !c.breaker.Allow() {
		return "", fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, ErrCircuitOpen)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reply, err := c.call(callCtx, prompt)
	if err != nil {
		err = classify(ctx, callCtx, err)
		switch {
		case errors.Is(err, models.ErrUpstreamUnavailable), errors.Is(err, models.ErrUpstreamTimeout):
			c.breaker.RecordFailure()
		case errors.Is(err, models.ErrInternal):
			// the service answered; it is reachable
			c.breaker.RecordSuccess()
		}
		return "", err
	}

	c.breaker.RecordSuccess()
	return reply, nil
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", models.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", models.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := models.ErrInternal
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			kind = models.ErrUpstreamUnavailable
		}
		return "", fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", models.ErrInternal, err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, ErrEmptyReply)
	}

	c.logger.Debug("Oracle call completed",
		zap.String("model", parsed.Model),
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("completion_tokens", parsed.Usage.CompletionTokens),
		zap.String("finish_reason", parsed.Choices[0].FinishReason),
	)
	return parsed.Choices[0].Message.Content, nil
}

// classify maps a transport error to a failure kind. Errors that already
// carry a kind pass through.
func classify(parent, callCtx context.Context, err error) error {
	for _, kind := range []error{models.ErrInternal, models.ErrUpstreamUnavailable, models.ErrUpstreamTimeout, models.ErrCanceled} {
		if errors.Is(err, kind) {
			return err
		}
	}

	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", models.ErrCanceled, err)
	}
	if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", models.ErrUpstreamTimeout, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}

	return fmt.Errorf("%w: %w", models.ErrInternal, err)
}
