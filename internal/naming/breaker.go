package naming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	Closed   BreakerState = iota // lookups pass through
	Open                         // lookups rejected without calling the provider
	HalfOpen                     // one probe lookup allowed
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned while the provider is considered down.
var ErrCircuitOpen = errors.New("naming circuit breaker is open")

// Breaker stops calling a failing geocoder until resetTimeout passes.
// ErrUnresolved answers are healthy responses and do not count as failures.
type Breaker struct {
	mu              sync.Mutex
	state           BreakerState
	failures        int
	maxFailures     int
	resetTimeout    time.Duration
	lastFailureTime time.Time
	probing         bool
	now             func() time.Time
}

// NewBreaker creates a Breaker that opens after maxFailures consecutive
// provider errors and allows a probe after resetTimeout.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open. Only one probe runs while
// half-open; concurrent callers get ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.probing = true
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && !errors.Is(err, ErrUnresolved) && !errors.Is(err, context.Canceled) {
		b.failures++
		b.lastFailureTime = b.now()
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.state = Open
		}
		return err
	}

	b.failures = 0
	b.state = Closed
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Guarded wraps a Resolver with a Breaker.
type Guarded struct {
	next    Resolver
	breaker *Breaker
}

// NewGuarded returns a Resolver that short-circuits while breaker is open.
func NewGuarded(next Resolver, breaker *Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Resolve(ctx context.Context, c geo.Coordinate) (string, error) {
	var name string
	err := g.breaker.Execute(func() error {
		var err error
		name, err = g.next.Resolve(ctx, c)
		return err
	})
	return name, err
}
