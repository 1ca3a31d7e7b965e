package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status is the tracked subject's health as judged by the watchdog.
type Status int

// Watchdog status values.
const (
	// StatusStopped means the watchdog is not running, or has not yet
	// completed its first cycle.
	StatusStopped Status = iota

	// StatusDown means the watchdog timeout elapsed without an Up call.
	StatusDown

	// StatusUp means external evidence showed the subject alive within
	// the timeout window.
	StatusUp
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusDown:
		return "down"
	case StatusUp:
		return "up"
	default:
		return "stopped"
	}
}

// Operation is the caller-supplied periodic action.
//
// Errors are logged and swallowed; the loop continues on the next
// interval. Context cancellation is not treated as an error.
type Operation func(ctx context.Context) error

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config holds configuration for a Watchdog.
type Config struct {
	// Name identifies the watchdog in logs.
	Name string

	// Interval is how often Operation runs.
	Interval time.Duration

	// Timeout is how long without an Up call before the subject is
	// declared down. Independent of Interval.
	Timeout time.Duration

	// Operation is the periodic action (required).
	Operation Operation

	// OnStatusChange is invoked once per status transition (optional).
	// It runs on the watchdog's own goroutine and must not block.
	OnStatusChange func(Status)

	// Logger is an optional structured logger.
	Logger Logger
}

// Watchdog repeatedly performs an operation at a fixed interval while
// independently declaring the tracked subject down if no Up signal
// arrives within the timeout. "Are we still trying" and "is the subject
// healthy" are deliberately decoupled: a Down transition never stops the
// periodic loop.
//
// Thread Safety: all methods are safe for concurrent use.
type Watchdog struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	op       Operation
	onStatus func(Status)
	logger   Logger

	status       Status
	lastActivity time.Time
	mu           sync.RWMutex

	// upCh carries Up signals into the run loop. Buffered so Up never
	// blocks; coalescing consecutive signals is fine, the loop resets
	// both timers either way.
	upCh chan struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watchdog. Call Start to begin both the periodic loop
// and the watchdog timer.
func New(cfg Config) *Watchdog {
	return &Watchdog{
		name:     cfg.Name,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		op:       cfg.Operation,
		onStatus: cfg.OnStatusChange,
		logger:   cfg.Logger,
		status:   StatusStopped,
		upCh:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic loop and the watchdog timer.
//
// Status remains Stopped until the first cycle completes: the first
// watchdog expiry moves it to Down, the first Up call to Up.
//
// Parameters:
//   - ctx: Cancelling it stops the loop like Stop does, but without
//     awaiting completion; prefer Stop for orderly shutdown.
func (w *Watchdog) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Up signals that external evidence shows the subject alive.
//
// It resets the watchdog timer, reschedules the next periodic operation
// to now + interval (cancelling any pending wait early), and transitions
// status to Up if not already there. Safe to call at any time, including
// before Start and after Stop.
func (w *Watchdog) Up() {
	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()

	select {
	case w.upCh <- struct{}{}:
	default:
	}
}

// Stop disables further scheduling, cancels the in-flight wait, awaits
// completion of any operation currently executing, and sets status to
// Stopped. Idempotent. An in-flight operation's side effects are never
// dropped: Stop returns only after it finishes.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.transition(StatusStopped)
	})
}

// Status returns the current watchdog status.
func (w *Watchdog) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// LastActivity returns the time of the most recent Up call.
// Zero if Up has never been called.
func (w *Watchdog) LastActivity() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastActivity
}

// run owns both timers. All status mutation happens here or in Stop,
// strictly after the loop has exited.
func (w *Watchdog) run(ctx context.Context) {
	defer w.wg.Done()

	opTimer := time.NewTimer(w.interval)
	defer opTimer.Stop()
	wdTimer := time.NewTimer(w.timeout)
	defer wdTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.done:
			return

		case <-w.upCh:
			resetTimer(opTimer, w.interval)
			resetTimer(wdTimer, w.timeout)
			w.transition(StatusUp)

		case <-opTimer.C:
			w.runOperation(ctx)
			opTimer.Reset(w.interval)

		case <-wdTimer.C:
			w.transition(StatusDown)
			wdTimer.Reset(w.timeout)
		}
	}
}

// runOperation executes the periodic action, logging and swallowing
// failures so one bad cycle never kills the loop.
func (w *Watchdog) runOperation(ctx context.Context) {
	if w.op == nil {
		return
	}

	err := w.op(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if w.logger != nil {
		w.logger.Warn("periodic operation failed",
			"watchdog", w.name,
			"error", err,
		)
	}
}

// transition moves to a new status, notifying exactly once per change.
func (w *Watchdog) transition(next Status) {
	w.mu.Lock()
	if w.status == next {
		w.mu.Unlock()
		return
	}
	w.status = next
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watchdog status changed",
			"watchdog", w.name,
			"status", next.String(),
		)
	}
	if w.onStatus != nil {
		w.onStatus(next)
	}
}

// resetTimer stops, drains, and re-arms a timer for a fresh duration.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
