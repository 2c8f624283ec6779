package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
)

// ErrBreakerOpen is returned without calling the backend while a breaker
// rejects calls.
var ErrBreakerOpen = errors.New("backend breaker open")

// State is the phase of a Breaker. The numeric values are exported as the
// circuit_breaker_state gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive backend failures that opens
	// the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls before it lets a
	// single trial call through.
	Cooldown time.Duration
	// Benign reports errors that prove the backend answered, such as a
	// cache miss. They count as successes.
	Benign func(error) bool
	// OnStateChange runs under the breaker lock after every transition.
	OnStateChange func(name string, to State)
}

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 10 * time.Second
)

// BreakerSnapshot is a point-in-time view of a Breaker.
type BreakerSnapshot struct {
	State               State
	ConsecutiveFailures int
	Rejected            int64
	OpenedAt            time.Time
}

// Breaker stops calling a failing backend. A call whose own context ended
// says nothing about the backend and is not counted either way.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
	rejected int64
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultBreakerThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultBreakerCooldown
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.WithComponent("breaker").With("backend", name),
	}
}

// Do runs fn unless the breaker rejects the call. The error of fn is
// returned unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(ctx, err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			b.rejected++
			return fmt.Errorf("%w: %s for another %v", ErrBreakerOpen, b.name, wait.Round(time.Millisecond))
		}
		b.setState(StateHalfOpen)
		b.trial = true
		b.logger.Info("cooldown elapsed, trying backend", "cooldown", b.cfg.Cooldown)
	case StateHalfOpen:
		if b.trial {
			b.rejected++
			return fmt.Errorf("%w: %s trial call in flight", ErrBreakerOpen, b.name)
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false

	switch {
	case err == nil || (b.cfg.Benign != nil && b.cfg.Benign(err)):
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
			b.logger.Info("backend recovered")
		}
	case ctx.Err() != nil:
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.setState(StateOpen)
			b.logger.Warn("backend breaker opened",
				"consecutive_failures", b.failures,
				"threshold", b.cfg.Threshold,
				"error", err,
			)
		}
	}
}

// Snapshot returns the current state and counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Rejected:            b.rejected,
		OpenedAt:            b.openedAt,
	}
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	if b.state != StateClosed {
		b.setState(StateClosed)
		b.logger.Info("breaker reset")
	}
}

func (b *Breaker) setState(to State) {
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
