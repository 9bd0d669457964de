package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"stepcap/internal/logging"
	"stepcap/internal/uia"
)

// DefaultTick is the nominal sampling period.
const DefaultTick = 10 * time.Millisecond

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.New("capture: loop already running")

// OpenFunc acquires the accessibility gateway. It runs on the loop's
// locked OS thread.
type OpenFunc func() (uia.Gateway, error)

// Loop drives a Tracker at a fixed cadence for the life of the process.
type Loop struct {
	open  OpenFunc
	tick  time.Duration
	opts  Options
	deps  Deps
	crash *logging.CrashHandler
	log   *slog.Logger

	running atomic.Bool
	tracker atomic.Pointer[Tracker]

	mu      sync.Mutex
	selfIDs []string
	pending bool
}

// NewLoop creates a loop. A non-positive tick uses DefaultTick; a nil
// crash handler logs panics without writing dumps.
func NewLoop(open OpenFunc, tick time.Duration, opts Options, deps Deps, crash *logging.CrashHandler) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if crash == nil {
		crash = logging.NewCrashHandler(deps.Logger, "", "")
	}
	return &Loop{
		open:  open,
		tick:  tick,
		opts:  opts,
		deps:  deps,
		crash: crash,
		log:   deps.Logger,
	}
}

// SetSelfIdentifiers updates self-exclusion for the running tracker, or
// for the next one if the loop has not opened its gateway yet.
func (l *Loop) SetSelfIdentifiers(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selfIDs = append([]string(nil), ids...)
	l.pending = true
	if t := l.tracker.Load(); t != nil {
		t.SetSelfIdentifiers(ids)
	}
}

// Tracker returns the active tracker, nil before Run has opened the
// gateway or after it returns.
func (l *Loop) Tracker() *Tracker {
	return l.tracker.Load()
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Run opens the gateway and samples until ctx is cancelled. Pausing and
// stopping tracking only make ticks skip their work. Run returns an error
// only when the gateway cannot be opened.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	// COM apartments are per thread; open, use and close on one.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	gw, err := l.open()
	if err != nil {
		l.log.Error("accessibility unavailable, sampling disabled", "error", err)
		return fmt.Errorf("capture: open accessibility: %w", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			l.log.Warn("close accessibility", "error", err)
		}
	}()

	t := NewTracker(gw, l.opts, l.deps)
	l.mu.Lock()
	if l.pending {
		t.SetSelfIdentifiers(l.selfIDs)
	}
	l.tracker.Store(t)
	l.mu.Unlock()
	defer l.tracker.Store(nil)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.log.Info("sampling loop started", "tick", l.tick)
	defer l.log.Info("sampling loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.machine.IsRunning() {
				continue
			}
			if l.crash.Guard("capture.tick", t.Tick) {
				t.m.Panics.Inc()
			}
		}
	}
}
