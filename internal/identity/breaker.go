package identity

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen fails calls fast until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// ErrCircuitOpen is returned without calling the provider while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker stops calling the identity provider after repeated upstream
// failures. Only errors the isFailure func accepts are counted, so client
// mistakes such as wrong passwords never trip it.
type Breaker struct {
	mu sync.Mutex

	maxFailures int
	cooldown    time.Duration
	isFailure   func(error) bool
	now         func() time.Time
	logger      *slog.Logger

	state       BreakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

func NewBreaker(maxFailures int, cooldown time.Duration, isFailure func(error) bool, logger *slog.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		isFailure:   isFailure,
		now:         time.Now,
		logger:      logger,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probeActive = true
		b.logger.Info("circuit breaker half-open")
	case StateHalfOpen:
		if b.probeActive {
			return ErrCircuitOpen
		}
		b.probeActive = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && b.isFailure(err)
	if b.state == StateHalfOpen {
		b.probeActive = false
		if failed {
			b.trip()
			return
		}
		b.state = StateClosed
		b.failures = 0
		b.logger.Info("circuit breaker closed")
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.logger.Warn("circuit breaker opened",
		slog.Int("failures", b.failures), slog.Duration("cooldown", b.cooldown))
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
