// Package deferred provides a compute-once value shared by any number of
// concurrent observers.
//
// A Value owns a single computation. The first call to Force starts it;
// every observer, first or late, receives the same terminal result.
// A Value never re-runs its computation: once settled it stays settled.
//
// Two execution modes share the same core:
//   - Blocking: the first forcer runs the computation on its own goroutine,
//     unless that forcer's context can be canceled; then the computation
//     moves to a fresh goroutine and the forcer only waits for it.
//   - Async: the first forcer schedules the computation on a fresh goroutine
//     with a context detached from its own cancellation, so an observer that
//     gives up waiting never cancels work other observers depend on.
//
// Publishing (val, err, state) happens-before close(done), so reads after
// <-done observe the final values.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// Mode selects where the computation runs.
type Mode uint8

const (
	// Blocking runs the computation on the goroutine of the first forcer.
	Blocking Mode = iota
	// Async runs the computation on its own goroutine.
	Async
)

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "blocking"
}

// State is the lifecycle state of a Value.
type State uint32

const (
	// Pending: not forced yet.
	Pending State = iota
	// Running: forced, computation in flight.
	Running
	// Completed: computation returned a value.
	Completed
	// Faulted: computation returned an error or panicked.
	Faulted
	// Canceled: computation returned context.Canceled or context.DeadlineExceeded.
	Canceled
)

// Settled reports whether s is terminal.
func (s State) Settled() bool { return s >= Completed }

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// PanicError is delivered to every observer when the computation panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("deferred: computation panicked: %v", e.Value)
}

// Func is the computation owned by a Value.
type Func[T any] func(ctx context.Context) (T, error)

// Value is a deferred, exactly-once computation.
type Value[T any] struct {
	fn   Func[T]
	mode Mode

	state atomic.Uint32
	done  chan struct{} // closed when val/err are published
	val   T
	err   error
}

// New returns a pending Value that will run fn at most once.
func New[T any](mode Mode, fn Func[T]) *Value[T] {
	return &Value[T]{fn: fn, mode: mode, done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (d *Value[T]) State() State { return State(d.state.Load()) }

// Start triggers the computation if nobody has yet. It never waits for the
// result of an Async value. A Blocking value runs before Start returns when
// ctx cannot be canceled; with a cancelable ctx it runs detached like an
// Async value, so Force still honors ctx.
func (d *Value[T]) Start(ctx context.Context) {
	if !d.state.CompareAndSwap(uint32(Pending), uint32(Running)) {
		return
	}
	if d.mode == Async || ctx.Done() != nil {
		go d.run(context.WithoutCancel(ctx))
		return
	}
	d.run(ctx)
}

// Force starts the computation if needed and waits for its result.
// If ctx is done before the Value settles, Force returns ctx.Err() and the
// computation keeps running for the remaining observers.
func (d *Value[T]) Force(ctx context.Context) (T, error) {
	d.Start(ctx)

	select {
	case <-d.done:
		return d.val, d.err
	default:
	}

	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the result without starting or waiting.
// ok is false until the Value has settled.
func (d *Value[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-d.done:
		return d.val, d.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

func (d *Value[T]) run(ctx context.Context) {
	final := Faulted
	defer func() {
		if r := recover(); r != nil {
			var zero T
			d.val, d.err = zero, &PanicError{Value: r, Stack: debug.Stack()}
			final = Faulted
		}
		d.state.Store(uint32(final))
		close(d.done)
	}()

	v, err := d.fn(ctx)
	d.val, d.err = v, err
	switch {
	case err == nil:
		final = Completed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		final = Canceled
	default:
		final = Faulted
	}
}
