package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBreakerOpen is returned when a call is rejected because the provider
// is cooling down after repeated failures.
var ErrBreakerOpen = eris.New("provider breaker is open")

// BreakerState is the current mode of a Breaker.
type BreakerState int

const (
	// BreakerClosed is the normal state; calls flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a provider is considered down.
type BreakerConfig struct {
	// FailureThreshold is the consecutive transient-failure count that
	// opens the breaker. Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before allowing a
	// trial call. Default 30s.
	Cooldown time.Duration
}

// Breaker trips after consecutive transient failures from one provider so
// a dead upstream stops burning the retry budget of every entity in a
// batch. Permanent errors (bad input for one entity) never trip it: the
// provider answered, it just said no.
type Breaker struct {
	provider string
	cfg      BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int
	lastFailedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a Breaker for one provider.
func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{provider: provider, cfg: cfg, nowFunc: time.Now}
}

// Guard runs fn through b. While the provider is cooling down, calls are
// rejected with ErrBreakerOpen without reaching the provider.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current breaker state, accounting for an elapsed
// cooldown.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.lastFailedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.nowFunc().Sub(b.lastFailedAt) >= b.cfg.Cooldown {
			b.transition(BreakerHalfOpen)
			return nil
		}
		return ErrBreakerOpen
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailedAt = b.nowFunc()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		// The trial call failed; keep cooling down.
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) transition(to BreakerState) {
	zap.L().Warn("provider breaker state change",
		zap.String("provider", b.provider),
		zap.String("from", b.state.String()),
		zap.String("to", to.String()),
	)
	b.state = to
}
