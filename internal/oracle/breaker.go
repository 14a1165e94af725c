package oracle

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the state of a circuit breaker
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls flow
	BreakerOpen                         // calls are rejected
	BreakerHalfOpen                     // one trial call at a time
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops calling the completion service after FailureThreshold
// consecutive availability failures. Once the cooldown has passed it lets
// trial calls through and closes again after enough of them succeed.
type Breaker struct {
	FailureThreshold int

	successThreshold int
	cooldown         time.Duration
	hook             func(from, to BreakerState)
	logger           *zap.Logger
	now              func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	trials   int
	openedAt time.Time
}

// BreakerOption customizes a Breaker
type BreakerOption func(*Breaker)

// WithThresholds sets how many consecutive failures open the breaker and
// how many half-open successes close it
func WithThresholds(failures, successes int) BreakerOption {
	return func(b *Breaker) {
		b.FailureThreshold = failures
		b.successThreshold = successes
	}
}

// WithCooldown sets how long the breaker stays open
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.cooldown = d }
}

// WithStateHook registers a callback run on every state change, after the
// change is logged
func WithStateHook(fn func(from, to BreakerState)) BreakerOption {
	return func(b *Breaker) { b.hook = fn }
}

// NewBreaker creates a breaker that opens after five consecutive failures,
// stays open for 30s and closes after two trial successes
func NewBreaker(logger *zap.Logger, opts ...BreakerOption) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		FailureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		logger:           logger,
		now:              time.Now,
		state:            BreakerClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.FailureThreshold < 1 {
		b.FailureThreshold = 1
	}
	if b.successThreshold < 1 {
		b.successThreshold = 1
	}
	return b
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may be attempted
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return true
	}
	if b.now().Sub(b.openedAt) <= b.cooldown {
		return false
	}
	b.setState(BreakerHalfOpen)
	return true
}

// RecordSuccess records a call that reached the service
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerHalfOpen {
		return
	}
	b.trials++
	if b.trials >= b.successThreshold {
		b.setState(BreakerClosed)
	}
}

// RecordFailure records an availability failure
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.FailureThreshold) {
		b.setState(BreakerOpen)
	}
}

// setState must be called with mu held
func (b *Breaker) setState(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.trials = 0
	switch to {
	case BreakerOpen:
		b.openedAt = b.now()
		b.logger.Warn("Oracle circuit breaker opened",
			zap.String("from", from.String()),
			zap.Int("consecutive_failures", b.failures),
			zap.Duration("cooldown", b.cooldown),
		)
	case BreakerClosed:
		b.failures = 0
		b.logger.Info("Oracle circuit breaker closed", zap.String("from", from.String()))
	default:
		b.logger.Info("Oracle circuit breaker half-open, allowing trial calls")
	}
	if b.hook != nil {
		b.hook(from, to)
	}
}
