// Package naming turns coordinates into human-readable place names.
// Resolution is best effort: callers fall back to UnknownLocation.
package naming

import (
	"context"
	"errors"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

// UnknownLocation is the label used whenever a name cannot be resolved.
const UnknownLocation = "Unknown Location"

// ErrUnresolved is returned when the provider has no name for a coordinate.
var ErrUnresolved = errors.New("location unresolved")

// Resolver maps a coordinate to a place name.
type Resolver interface {
	Resolve(ctx context.Context, c geo.Coordinate) (string, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, c geo.Coordinate) (string, error)

func (f Func) Resolve(ctx context.Context, c geo.Coordinate) (string, error) {
	return f(ctx, c)
}

// Static resolves every coordinate to the same name. An empty Static
// always reports ErrUnresolved.
type Static string

func (s Static) Resolve(ctx context.Context, c geo.Coordinate) (string, error) {
	if s == "" {
		return "", ErrUnresolved
	}
	return string(s), nil
}

// ResolveOrFallback resolves c within timeout. Any failure, including
// cancellation of ctx, yields UnknownLocation and ok=false.
func ResolveOrFallback(ctx context.Context, r Resolver, c geo.Coordinate, timeout time.Duration) (name string, ok bool) {
	if r == nil {
		return UnknownLocation, false
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		name string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Resolve(ctx, c)
		done <- result{n, err}
	}()

	// Resolvers that ignore ctx must not hold the caller hostage.
	select {
	case <-ctx.Done():
		return UnknownLocation, false
	case res := <-done:
		if res.err != nil || res.name == "" {
			return UnknownLocation, false
		}
		return res.name, true
	}
}
