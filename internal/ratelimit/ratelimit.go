package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobcatalog/internal/clock"
)

// Strategy names a limiter implementation in config.
const (
	StrategyTokenBucket = "token_bucket"
	StrategyFixedWindow = "fixed_window"
)

// Limiter gates calls to one source.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket allows bursts up to burst and refills at rps tokens per second.
type TokenBucket struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewTokenBucket creates a token-bucket limiter driven by clk.
func NewTokenBucket(rps float64, burst int, clk clock.Clock) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		clock:   clk,
	}
}

// Wait reserves a token and sleeps on the clock until it is available.
func (b *TokenBucket) Wait(ctx context.Context) error {
	now := b.clock.Now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("token bucket: burst too small")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := b.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(b.clock.Now())
		return fmt.Errorf("token bucket wait: %w", err)
	}
	return nil
}

// FixedWindow enforces a minimum delay between consecutive calls.
type FixedWindow struct {
	mu       sync.Mutex
	next     time.Time // earliest time the next call may start
	minDelay time.Duration
	clock    clock.Clock
}

// NewFixedWindow creates a limiter that spaces calls minDelay apart.
func NewFixedWindow(minDelay time.Duration, clk clock.Clock) *FixedWindow {
	return &FixedWindow{minDelay: minDelay, clock: clk}
}

// Wait blocks until enough time has passed since the previous call.
// Returns an error if the context is cancelled while waiting.
func (w *FixedWindow) Wait(ctx context.Context) error {
	w.mu.Lock()
	now := w.clock.Now()
	start := now
	if w.next.After(now) {
		start = w.next
	}
	// Claim the slot before releasing the lock so concurrent callers queue up.
	w.next = start.Add(w.minDelay)
	w.mu.Unlock()

	remaining := start.Sub(now)
	if remaining <= 0 {
		// First call, or enough time has passed: proceed immediately.
		return nil
	}
	if err := w.clock.Sleep(ctx, remaining); err != nil {
		return fmt.Errorf("fixed window wait: %w", err)
	}
	return nil
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// Config describes one source's limiter.
type Config struct {
	Strategy string
	RPS      float64
	Burst    int
	MinDelay time.Duration
}

// New builds the limiter described by cfg.
func New(cfg Config, clk clock.Clock) (Limiter, error) {
	switch cfg.Strategy {
	case StrategyTokenBucket:
		if cfg.RPS <= 0 {
			return nil, fmt.Errorf("token bucket needs rps > 0, got %v", cfg.RPS)
		}
		return NewTokenBucket(cfg.RPS, cfg.Burst, clk), nil
	case StrategyFixedWindow:
		return NewFixedWindow(cfg.MinDelay, clk), nil
	case "", "none":
		return Unlimited{}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}

// Registry holds one limiter per source identifier.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]Limiter)}
}

// Set installs l for source, replacing any previous limiter.
func (r *Registry) Set(source string, l Limiter) {
	r.mu.Lock()
	r.limiters[source] = l
	r.mu.Unlock()
}

// For returns the limiter for source, or Unlimited when none is configured.
func (r *Registry) For(source string) Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.limiters[source]; ok {
		return l
	}
	return Unlimited{}
}
