package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestBreaker(now *time.Time, opts ...BreakerOption) *Breaker {
	b := NewBreaker(zap.NewNop(), opts...)
	b.now = func() time.Time { return *now }
	return b
}

func TestBreakerLifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var transitions []string
	b := newTestBreaker(&now,
		WithThresholds(2, 1),
		WithCooldown(time.Minute),
		WithStateHook(func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now, WithThresholds(1, 1), WithCooldown(time.Second))

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// the cooldown restarts from the reopening
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerNeedsEveryTrialSuccess(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now, WithThresholds(1, 2), WithCooldown(time.Second))

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(nil, WithThresholds(2, 1))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(nil, WithThresholds(0, -1))

	assert.Equal(t, 1, b.FailureThreshold)
	assert.Equal(t, 1, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
}

func TestBreakerLogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(zap.New(core), WithThresholds(1, 1), WithCooldown(time.Second))
	b.now = func() time.Time { return now }

	b.RecordFailure()

	opened := logs.FilterMessage("Oracle circuit breaker opened").All()
	require.Len(t, opened, 1)
	assert.Equal(t, zapcore.WarnLevel, opened[0].Level)
	assert.Equal(t, "closed", opened[0].ContextMap()["from"])
	assert.Equal(t, int64(1), opened[0].ContextMap()["consecutive_failures"])

	now = now.Add(2 * time.Second)
	b.Allow()
	b.RecordSuccess()
	assert.Equal(t, 1, logs.FilterMessage("Oracle circuit breaker closed").Len())
}

func TestWithBreakerKeepsStateHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var opened int
	b := NewBreaker(zap.NewNop(), WithThresholds(1, 1), WithStateHook(func(_, to BreakerState) {
		if to == BreakerOpen {
			opened++
		}
	}))
	client := New(Config{APIKey: "k", BaseURL: srv.URL, RPS: 100}, zap.NewNop(), WithBreaker(b))

	_, err := client.Complete(context.Background(), "p")
	require.Error(t, err)

	assert.Same(t, b, client.Breaker())
	assert.Equal(t, 1, opened)
}
