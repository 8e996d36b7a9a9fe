package naming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

var errTest = errors.New("test error")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(maxFailures int, reset time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(maxFailures, reset)
	b.now = clock.Now
	return b, clock
}

func TestBreaker_InitialState(t *testing.T) {
	b := NewBreaker(5, 30*time.Second)
	if b.State() != Closed {
		t.Errorf("initial state: got %v, want closed", b.State())
	}
}

func TestBreaker_PropagatesError(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Errorf("expected errTest, got %v", err)
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errTest })
	}
	if b.State() != Open {
		t.Fatalf("state: got %v, want open", b.State())
	}

	err := b.Execute(func() error {
		t.Error("provider should not be called while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_UnresolvedIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	for i := 0; i < 5; i++ {
		err := b.Execute(func() error { return ErrUnresolved })
		if !errors.Is(err, ErrUnresolved) {
			t.Fatalf("expected ErrUnresolved, got %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("state: got %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(1, time.Second)
	b.Execute(func() error { return errTest })
	if b.State() != Open {
		t.Fatal("expected open")
	}

	clock.Advance(2 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state after successful probe: got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errTest })
	}
	clock.Advance(2 * time.Second)
	b.Execute(func() error { return errTest })
	if b.State() != Open {
		t.Errorf("state after failed probe: got %v, want open", b.State())
	}
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(1, time.Second)
	b.Execute(func() error { return errTest })
	clock.Advance(2 * time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	go b.Execute(func() error {
		close(inProbe)
		<-release
		return nil
	})
	<-inProbe

	err := b.Execute(func() error {
		t.Error("second probe should be rejected")
		return nil
	})
	close(release)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestGuarded_ShortCircuits(t *testing.T) {
	calls := 0
	inner := Func(func(ctx context.Context, c geo.Coordinate) (string, error) {
		calls++
		return "", errTest
	})
	g := NewGuarded(inner, NewBreaker(2, time.Minute))

	for i := 0; i < 5; i++ {
		g.Resolve(context.Background(), shibuya)
	}
	if calls != 2 {
		t.Errorf("provider calls: got %d, want 2", calls)
	}
	if _, err := g.Resolve(context.Background(), shibuya); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}
