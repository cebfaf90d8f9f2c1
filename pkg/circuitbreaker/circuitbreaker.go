// Package circuitbreaker stops calling an optional dependency after it keeps
// failing and lets a trial call through after a cool-down.
//
// gymstats uses it in front of the Redis statistics cache: the cache only
// speeds queries up, so once Redis is down queries skip it instead of paying
// a network timeout on every read and write.
package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State is the breaker position.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpen is returned without calling the function while the breaker is open
// or while all half-open trial calls are in flight.
var ErrOpen = errors.New("circuit breaker is open")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds breaker thresholds.
type Config struct {
	Name string

	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold uint32

	// MaxTrials bounds calls in the half-open state; that many consecutive
	// successes close the breaker again.
	MaxTrials uint32

	// CoolDown is the time an open breaker waits before letting a trial call through.
	CoolDown time.Duration

	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
}

// Option configures a breaker.
type Option func(*Config)

// WithFailureThreshold sets the number of failures that opens the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithMaxTrials sets the half-open trial call count.
func WithMaxTrials(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxTrials = n
		}
	}
}

// WithCoolDown sets the open state duration.
func WithCoolDown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CoolDown = d
		}
	}
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithOnStateChange sets the transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Breaker wraps gobreaker with a context aware Execute. Safe for concurrent use.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker
	rejected atomic.Int64
}

// New creates a closed breaker. Defaults: 5 failures, 1 trial call, 30s cool-down.
func New(name string, opts ...Option) *Breaker {
	cfg := Config{
		Name:             name,
		FailureThreshold: 5,
		MaxTrials:        1,
		CoolDown:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxTrials,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: cfg.OnStateChange,
	}
	if cfg.IsFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !cfg.IsFailure(err)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// ForCache returns the breaker used in front of the statistics cache. Context
// cancellation is the caller's doing and never trips it.
func ForCache(onStateChange func(name string, from, to State)) *Breaker {
	return New("stats-cache",
		WithFailureThreshold(3),
		WithCoolDown(15*time.Second),
		WithIsFailure(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		WithOnStateChange(onStateChange),
	)
}

// Execute calls fn unless the breaker rejects it with ErrOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.rejected.Add(1)
		return ErrOpen
	}
	return err
}

// State returns the current position.
func (b *Breaker) State() State { return b.cb.State() }

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.cb.Name() }

// Counts returns the outcome counters of the current state. They reset on
// every transition.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }

// Rejected returns how many calls were refused since creation.
func (b *Breaker) Rejected() int64 { return b.rejected.Load() }
