package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindNotSupported ErrorKind = "not_supported"
	KindUnavailable  ErrorKind = "unavailable"
	KindTimeout      ErrorKind = "timeout"
	KindFailed       ErrorKind = "failed"
	KindPanic        ErrorKind = "panic"
)

// CapabilityError is what a failed host call turns into.
type CapabilityError struct {
	Op      string
	Profile Profile
	Kind    ErrorKind
	Err     error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("[%s] %s: %s: %v", e.Profile, e.Op, e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

type Result[T any] struct {
	Value T
	Err   *CapabilityError
}

func (r Result[T]) OK() bool { return r.Err == nil }

// Or returns the value, or def when the call failed.
func (r Result[T]) Or(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

type outcome[T any] struct {
	v   T
	err error
	pan interface{}
}

// Guard runs fn under a deadline and converts errors, timeouts and
// panics into a Result. fn keeps running in the background after a
// timeout; its late result is dropped.
func Guard[T any](ctx context.Context, timeout time.Duration, p Profile, op string, fn func(context.Context) (T, error)) Result[T] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{pan: r}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{v: v, err: err}
	}()

	select {
	case o := <-done:
		if o.pan != nil {
			return Result[T]{Err: &CapabilityError{Op: op, Profile: p, Kind: KindPanic, Err: fmt.Errorf("panic: %v", o.pan)}}
		}
		if o.err != nil {
			return Result[T]{Value: o.v, Err: &CapabilityError{Op: op, Profile: p, Kind: classify(o.err), Err: o.err}}
		}
		return Result[T]{Value: o.v}
	case <-ctx.Done():
		return Result[T]{Err: &CapabilityError{Op: op, Profile: p, Kind: KindTimeout, Err: ctx.Err()}}
	}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotSupported):
		return KindNotSupported
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindFailed
}
