package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/model"
)

// State is a step of the retry state machine.
type State int

const (
	Idle State = iota
	Attempting
	Waiting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Waiting:
		return "waiting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt, doubled afterwards
	MaxDelay    time.Duration // cap on a single wait, zero for none
	Jitter      float64       // fraction of the delay applied as ± jitter
}

// DefaultPolicy mirrors the collector defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Jitter: 0.3}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Result describes how a machine run ended.
type Result struct {
	State    State
	Attempts int
	Err      error         // last error, nil on success
	Waited   time.Duration // total time spent in Waiting
}

// Machine drives Idle → Attempting → Waiting → Succeeded|Failed on an injected clock.
type Machine struct {
	policy   Policy
	clock    clock.Clock
	classify Classifier
	random   func() float64
	logger   *slog.Logger
	observe  func(from, to State, attempt int)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClassifier replaces IsTransient.
func WithClassifier(c Classifier) Option {
	return func(m *Machine) { m.classify = c }
}

// WithRandom replaces the jitter source; it must return values in [0, 1).
func WithRandom(r func() float64) Option {
	return func(m *Machine) { m.random = r }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithObserver is called on every state transition.
func WithObserver(fn func(from, to State, attempt int)) Option {
	return func(m *Machine) { m.observe = fn }
}

// NewMachine builds a machine for policy on clk.
func NewMachine(policy Policy, clk clock.Clock, opts ...Option) *Machine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	m := &Machine{
		policy:   policy,
		clock:    clk,
		classify: IsTransient,
		random:   rand.Float64,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes op until it succeeds, fails permanently, exhausts the attempt
// budget, or ctx is cancelled.
func (m *Machine) Run(ctx context.Context, op Operation) Result {
	var (
		state   = Idle
		attempt int
		lastErr error
		waited  time.Duration
	)

	move := func(to State) {
		if m.observe != nil {
			m.observe(state, to, attempt)
		}
		state = to
	}

	move(Attempting)
	for {
		switch state {
		case Attempting:
			if err := ctx.Err(); err != nil {
				lastErr = err
				move(Failed)
				continue
			}
			attempt++
			lastErr = op(ctx, attempt)
			switch {
			case lastErr == nil:
				move(Succeeded)
			case attempt >= m.policy.MaxAttempts || !m.classify(lastErr):
				move(Failed)
			default:
				move(Waiting)
			}

		case Waiting:
			delay := m.Delay(attempt, lastErr)
			m.logger.Warn("retrying after transient error",
				"attempt", attempt,
				"max_attempts", m.policy.MaxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			if err := m.clock.Sleep(ctx, delay); err != nil {
				lastErr = errors.Join(lastErr, err)
				move(Failed)
				continue
			}
			waited += delay
			move(Attempting)

		case Succeeded:
			return Result{State: Succeeded, Attempts: attempt, Waited: waited}

		case Failed:
			return Result{State: Failed, Attempts: attempt, Err: lastErr, Waited: waited}
		}
	}
}

// Delay computes the wait after the given attempt with ± jitter.
// A Retry-After hint on the error takes precedence.
func (m *Machine) Delay(attempt int, err error) time.Duration {
	if hint := retryAfter(err); hint > 0 {
		return hint
	}

	// Exponential: BaseDelay * 2^(attempt-1)
	delay := m.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if m.policy.MaxDelay > 0 && delay >= m.policy.MaxDelay {
			break
		}
	}
	if m.policy.MaxDelay > 0 && delay > m.policy.MaxDelay {
		delay = m.policy.MaxDelay
	}

	if m.policy.Jitter > 0 {
		jitter := float64(delay) * m.policy.Jitter
		delay = time.Duration(float64(delay) + (m.random()*2-1)*jitter)
	}
	return delay
}

// Do is a convenience wrapper returning only the final error.
func Do(ctx context.Context, policy Policy, clk clock.Clock, op Operation, opts ...Option) error {
	return NewMachine(policy, clk, opts...).Run(ctx, op).Err
}

func retryAfter(err error) time.Duration {
	var transient *model.TransientSourceError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return transient.RetryAfter
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return 0
}

// IsTransient returns true if the error represents a failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancelled: never retry.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transient *model.TransientSourceError
	if errors.As(err, &transient) {
		return true
	}

	var conflict *model.DuplicateConflictError
	if errors.As(err, &conflict) {
		return true
	}

	var malformed *model.MalformedDataError
	if errors.As(err, &malformed) {
		return false
	}

	var storage *model.StorageError
	if errors.As(err, &storage) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests and 5xx are retryable. Other 4xx are not.
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	// Network errors and per-attempt timeouts.
	return true
}
