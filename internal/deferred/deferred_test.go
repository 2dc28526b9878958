package deferred

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Many observers force the same Value; the computation runs once and all
// observers see the same result.
func TestValue_ForceOnce(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{Blocking, Async} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			d := New(mode, func(context.Context) (int, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})

			var g errgroup.Group
			for i := 0; i < 32; i++ {
				g.Go(func() error {
					v, err := d.Force(context.Background())
					if err != nil {
						return err
					}
					if v != 42 {
						return errors.New("wrong value")
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			if got := calls.Load(); got != 1 {
				t.Fatalf("computation ran %d times, want 1", got)
			}
			if d.State() != Completed {
				t.Fatalf("state = %v, want completed", d.State())
			}
		})
	}
}

// A failed computation is terminal: later forces return the same error and
// never re-run it.
func TestValue_FaultIsTerminal(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls atomic.Int64
	d := New(Blocking, func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})

	for i := 0; i < 3; i++ {
		if _, err := d.Force(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("force #%d: err = %v, want boom", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("faulted computation re-ran: %d calls", calls.Load())
	}
	if d.State() != Faulted {
		t.Fatalf("state = %v, want faulted", d.State())
	}
}

func TestValue_CanceledState(t *testing.T) {
	t.Parallel()

	d := New(Async, func(ctx context.Context) (int, error) {
		return 0, context.Canceled
	})
	if _, err := d.Force(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if d.State() != Canceled {
		t.Fatalf("state = %v, want canceled", d.State())
	}
}

// An observer whose ctx expires stops waiting; the async computation keeps
// running and settles for the others.
func TestValue_ObserverCancelDoesNotCancelWork(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	d := New(Async, func(ctx context.Context) (int, error) {
		<-release
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 7, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Force(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled observer: err = %v", err)
	}

	close(release)
	v, err := d.Force(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("second observer: v=%d err=%v", v, err)
	}
}

// A panic is converted into a PanicError for every observer instead of
// stranding followers on the done channel.
func TestValue_PanicReleasesWaiters(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	d := New(Blocking, func(context.Context) (int, error) {
		close(started)
		time.Sleep(5 * time.Millisecond)
		panic("kaboom")
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := d.Force(context.Background())
		errs <- err
	}()
	go func() {
		defer wg.Done()
		<-started
		_, err := d.Force(context.Background())
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		var pe *PanicError
		if !errors.As(err, &pe) || pe.Value != "kaboom" {
			t.Fatalf("want PanicError(kaboom), got %v", err)
		}
	}
}

func TestValue_Peek(t *testing.T) {
	t.Parallel()

	d := New(Blocking, func(context.Context) (int, error) { return 1, nil })
	if _, _, ok := d.Peek(); ok {
		t.Fatal("pending value must not peek as settled")
	}
	if d.State() != Pending || d.State().Settled() {
		t.Fatalf("state = %v, want pending", d.State())
	}
	_, _ = d.Force(context.Background())
	if v, err, ok := d.Peek(); !ok || err != nil || v != 1 {
		t.Fatalf("Peek after force: v=%d err=%v ok=%v", v, err, ok)
	}
	if !d.State().Settled() {
		t.Fatalf("state = %v, want settled", d.State())
	}
}

// A Blocking value forced with a cancelable ctx runs detached: the forcer
// stops waiting when its ctx ends and the computation settles for others.
func TestValue_BlockingWithCancelableCtx(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int64
	d := New(Blocking, func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 9, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Force(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cancelable forcer: err = %v, want deadline", err)
	}
	if d.State() != Running {
		t.Fatalf("state = %v, want running", d.State())
	}

	close(release)
	v, err := d.Force(context.Background())
	if err != nil || v != 9 {
		t.Fatalf("second observer: v=%d err=%v", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("computation ran %d times, want 1", calls.Load())
	}
}
