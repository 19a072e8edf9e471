// Package resilience keeps transcription available when a speech-to-text
// backend misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering a backend after repeated failures. [Chain] puts a breaker in
// front of each configured provider and fails over to the next one in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A probe
	// failure re-opens the breaker; enough successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 1.
	HalfOpenMax int
}

// Breaker implements the circuit breaker pattern. Errors caused by the
// caller, such as a cancelled context or an empty recording, are passed
// through without counting as backend failures; see [Breaker.Do].
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewBreaker creates a [Breaker]. Zero-valued config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
	}
}

// Do runs fn if the breaker allows it. isFailure decides whether a non-nil
// error counts against the backend; a nil isFailure counts every error except
// context cancellation.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, isFailure func(error) bool) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.recordSuccess(probe)
	case countsAsFailure(ctx, err, isFailure):
		b.recordFailure(probe)
	case probe:
		// Caller errors neither close nor re-open a probing breaker.
		b.probes--
	}
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probes, b.probeSuccesses = 0, 0
		slog.Info("circuit breaker half-open", "name", b.name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

func countsAsFailure(ctx context.Context, err error, isFailure func(error) bool) bool {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return false
	}
	if isFailure != nil {
		return isFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(probe bool) {
	if probe {
		b.open()
		slog.Warn("circuit breaker re-opened after failed probe", "name", b.name)
		return
	}
	b.consecutiveFail++
	if b.state == StateClosed && b.consecutiveFail >= b.maxFailures {
		b.open()
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.consecutiveFail)
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(probe bool) {
	if !probe {
		b.consecutiveFail = 0
		return
	}
	b.probeSuccesses++
	if b.probeSuccesses >= b.halfOpenMax {
		b.state = StateClosed
		b.consecutiveFail = 0
		slog.Info("circuit breaker closed", "name", b.name)
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
	b.probes, b.probeSuccesses = 0, 0
	slog.Info("circuit breaker manually reset", "name", b.name)
}
