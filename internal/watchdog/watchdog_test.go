package watchdog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// statusRecorder captures status transitions in order.
type statusRecorder struct {
	mu          sync.Mutex
	transitions []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	r.transitions = append(r.transitions, s)
	r.mu.Unlock()
}

func (r *statusRecorder) get() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func (r *statusRecorder) count(want Status) int {
	n := 0
	for _, s := range r.get() {
		if s == want {
			n++
		}
	}
	return n
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

func TestPeriodicOperationRuns(t *testing.T) {
	var runs atomic.Int32

	w := New(Config{
		Name:     "test",
		Interval: 20 * time.Millisecond,
		Timeout:  time.Second,
		Operation: func(_ context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 },
		"operation to run at least 3 times")
}

func TestUpPreventsDown(t *testing.T) {
	rec := &statusRecorder{}

	w := New(Config{
		Name:           "test",
		Interval:       time.Hour,
		Timeout:        80 * time.Millisecond,
		Operation:      func(_ context.Context) error { return nil },
		OnStatusChange: rec.record,
	})
	w.Start(context.Background())
	defer w.Stop()

	// Keep pinging faster than the timeout.
	for i := 0; i < 5; i++ {
		w.Up()
		time.Sleep(30 * time.Millisecond)
	}

	if got := rec.count(StatusDown); got != 0 {
		t.Errorf("Down transitions = %d, want 0", got)
	}
	if w.Status() != StatusUp {
		t.Errorf("Status() = %v, want StatusUp", w.Status())
	}
}

func TestWatchdogExpiryProducesSingleDown(t *testing.T) {
	rec := &statusRecorder{}

	w := New(Config{
		Name:           "test",
		Interval:       time.Hour,
		Timeout:        40 * time.Millisecond,
		Operation:      func(_ context.Context) error { return nil },
		OnStatusChange: rec.record,
	})
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return w.Status() == StatusDown },
		"watchdog to expire")

	// Let a couple more expiries elapse; status is already Down so no
	// further notifications may fire.
	time.Sleep(120 * time.Millisecond)
	if got := rec.count(StatusDown); got != 1 {
		t.Errorf("Down transitions = %d, want exactly 1", got)
	}

	// Up again recovers.
	w.Up()
	waitFor(t, time.Second, func() bool { return w.Status() == StatusUp },
		"status to recover to Up")
	if got := rec.count(StatusUp); got != 1 {
		t.Errorf("Up transitions = %d, want exactly 1", got)
	}
}

func TestInitialStatusStopped(t *testing.T) {
	w := New(Config{
		Name:      "test",
		Interval:  time.Hour,
		Timeout:   time.Hour,
		Operation: func(_ context.Context) error { return nil },
	})

	if w.Status() != StatusStopped {
		t.Errorf("Status() before Start = %v, want StatusStopped", w.Status())
	}

	w.Start(context.Background())
	defer w.Stop()

	// No cycle has completed yet.
	if w.Status() != StatusStopped {
		t.Errorf("Status() before first cycle = %v, want StatusStopped", w.Status())
	}
}

func TestUpReschedulesOperation(t *testing.T) {
	var runs atomic.Int32

	w := New(Config{
		Name:     "test",
		Interval: 50 * time.Millisecond,
		Timeout:  time.Hour,
		Operation: func(_ context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	w.Start(context.Background())
	defer w.Stop()

	// Ping every 30ms: the 50ms operation wait is always cancelled and
	// rescheduled before it fires.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		w.Up()
	}

	if got := runs.Load(); got != 0 {
		t.Errorf("operation ran %d times, want 0 (always rescheduled)", got)
	}
}

func TestOperationErrorsAreSwallowed(t *testing.T) {
	var runs atomic.Int32

	w := New(Config{
		Name:     "test",
		Interval: 20 * time.Millisecond,
		Timeout:  time.Hour,
		Operation: func(_ context.Context) error {
			runs.Add(1)
			return errors.New("transient publish failure")
		},
	})
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 },
		"loop to continue past operation errors")
}

func TestStopAwaitsInFlightOperation(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})

	w := New(Config{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Timeout:  time.Hour,
		Operation: func(_ context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(80 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	})
	w.Start(context.Background())

	<-started
	w.Stop()

	if !finished.Load() {
		t.Error("Stop() returned before in-flight operation completed")
	}
	if w.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %v, want StatusStopped", w.Status())
	}
}

func TestStopIdempotent(t *testing.T) {
	w := New(Config{
		Name:      "test",
		Interval:  10 * time.Millisecond,
		Timeout:   time.Hour,
		Operation: func(_ context.Context) error { return nil },
	})
	w.Start(context.Background())

	w.Stop()
	w.Stop() // must not panic or deadlock
}

func TestUpAfterStopIsSafe(t *testing.T) {
	w := New(Config{
		Name:      "test",
		Interval:  10 * time.Millisecond,
		Timeout:   time.Hour,
		Operation: func(_ context.Context) error { return nil },
	})
	w.Start(context.Background())
	w.Stop()

	w.Up() // no goroutine is listening; must not block

	if w.Status() != StatusStopped {
		t.Errorf("Status() = %v, want StatusStopped", w.Status())
	}
}
