// Package breaker implements a Closed/Open/HalfOpen circuit breaker guarding
// transport dial attempts and outbound calls. No circuit-breaker library
// occurs anywhere in the retrieved pack, so this is a bespoke state machine
// built directly from the Closed->Open->HalfOpen description in the
// transport layer's design rather than an adaptation of a pack dependency.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call when the breaker is Open and not yet due for
// a HalfOpen trial.
var ErrOpen = errors.New("breaker: circuit open")

// Config configures a Breaker's trip and recovery thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that trips the breaker to Open.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays Open before moving to
	// HalfOpen, where calls are let through again.
	OpenTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in
	// HalfOpen state required to close the breaker again.
	SuccessThreshold int
}

// DefaultConfig is a reasonable default for a transport dial breaker.
var DefaultConfig = Config{
	FailureThreshold: 5,
	OpenTimeout:      30 * time.Second,
	SuccessThreshold: 2,
}

// Breaker guards calls to an unreliable operation (a transport dial, an
// outbound RPC) behind a Closed/Open/HalfOpen state machine.
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	consecutiveFails int
	consecutiveOKs   int
	openedAt         time.Time
}

// New builds a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig.OpenTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// State reports the breaker's current state, transitioning Open->HalfOpen
// first if OpenTimeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.consecutiveOKs = 0
	}
}

// Allow reports whether a call should be attempted right now, without
// running it. Callers that need to run arbitrary work should prefer Call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state != Open
}

// Call runs fn if the breaker permits it, recording the outcome. It
// returns ErrOpen without invoking fn when the breaker is Open.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailureLocked()
		return fmt.Errorf("breaker: call failed: %w", err)
	}
	b.onSuccessLocked()
	return nil
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case HalfOpen:
		b.consecutiveOKs++
		if b.consecutiveOKs >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveFails = 0
			b.consecutiveOKs = 0
		}
	case Closed:
		b.consecutiveFails = 0
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.consecutiveOKs = 0
}
