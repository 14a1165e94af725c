package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signed(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func whoami(c *gin.Context) {
	id, ok := GetUserID(c)
	if !ok {
		id = "anonymous"
	}
	c.String(http.StatusOK, id)
}

func TestOptionalAuth(t *testing.T) {
	const secret = "test-secret"
	r := gin.New()
	r.Use(OptionalAuth(secret, zap.NewNop()))
	r.GET("/", whoami)

	valid := signed(t, secret, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	subjectOnly := signed(t, secret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"}})
	expired := signed(t, secret, Claims{
		UserID:           "user-3",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	wrongKey := signed(t, "other", Claims{UserID: "user-4"})

	tests := map[string]struct {
		header string
		want   string
	}{
		"no header":      {"", "anonymous"},
		"valid token":    {"Bearer " + valid, "user-1"},
		"subject claim":  {"Bearer " + subjectOnly, "user-2"},
		"expired token":  {"Bearer " + expired, "anonymous"},
		"wrong key":      {"Bearer " + wrongKey, "anonymous"},
		"not bearer":     {"Basic abc", "anonymous"},
		"garbage bearer": {"Bearer not-a-jwt", "anonymous"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestOptionalAuthDisabledWithoutSecret(t *testing.T) {
	r := gin.New()
	r.Use(OptionalAuth("", zap.NewNop()))
	r.GET("/", whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "", Claims{UserID: "u"}))

	assert.Equal(t, "anonymous", serve(r, req).Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(2, 2, time.Minute), zap.NewNop()))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	serve(r, httptest.NewRequest(http.MethodPost, "/", nil))
	w = serve(r, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests","code":"RATE_LIMITED"}`, w.Body.String())
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewPerMinuteLimiter(1)
	rl.now = func() time.Time { return now }

	ok, _, _ := rl.Allow(context.Background(), "k")
	assert.True(t, ok)
	ok, _, _ = rl.Allow(context.Background(), "k")
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	ok, remaining, _ := rl.Allow(context.Background(), "k")
	assert.True(t, ok)
	assert.Zero(t, remaining)

	// keys are independent
	ok, _, _ = rl.Allow(context.Background(), "other")
	assert.True(t, ok)
}

func TestRateLimiterDropsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(4, 2, time.Minute)
	rl.now = func() time.Time { return now }

	for _, key := range []string{"a", "b", "c"} {
		ok, _, _ := rl.Allow(context.Background(), key)
		require.True(t, ok)
	}
	assert.Equal(t, 3, rl.Len())

	// one period is not enough to refill four tokens at two per period
	now = now.Add(time.Minute)
	_, _, _ = rl.Allow(context.Background(), "a")
	assert.Equal(t, 3, rl.Len())

	now = now.Add(time.Minute)
	_, _, _ = rl.Allow(context.Background(), "a")
	assert.Equal(t, 1, rl.Len())

	// a dropped key starts again with a full bucket
	ok, remaining, _ := rl.Allow(context.Background(), "b")
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestRateLimiterClampsNonPositiveLimit(t *testing.T) {
	rl := NewPerMinuteLimiter(0)

	ok, _, _ := rl.Allow(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, 1, rl.Limit())
}

func TestRecoveryWritesGenericBody(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("Recovered from panic").Len())
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, p := range []string{"/ok", "/bad", "/fail"} {
		serve(r, httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.NotEmpty(t, entries[2].ContextMap()["request_id"])
}
