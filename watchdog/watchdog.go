// Package watchdog implements the shared-device idle timer that demotes an
// elevated parent principal back to kid after inactivity. It is embedded by
// clients of this service (the mobile app's Go core); the server never runs
// one. The caller starts it only while all of its preconditions hold —
// parent principal, unlocked, shared-device mode — and stops it the moment
// any of them becomes false.
package watchdog

import (
	"errors"
	"sync"
	"time"
)

// Watchdog is an event-driven one-shot idle timer. Interaction events call
// Touch, which reschedules the expiry from the full timeout; expiry fires the
// demotion callback at most once per activation.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire func()
	timer    *time.Timer
	active   bool
	fired    bool
}

// New creates an inert watchdog. onExpire is expected to re-mint a kid
// principal and clear the parent-unlocked state.
func New(timeout time.Duration, onExpire func()) (*Watchdog, error) {
	if timeout <= 0 {
		return nil, errors.New("idle timeout must be positive")
	}
	if onExpire == nil {
		return nil, errors.New("expiry callback must be set")
	}
	return &Watchdog{timeout: timeout, onExpire: onExpire}, nil
}

// Start arms the watchdog. The first deadline accounts for activity that
// happened before arming: remaining time is the timeout minus the elapsed
// idle period, floored at zero. Starting an already-active watchdog resets
// it.
func (w *Watchdog) Start(lastActivityAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelLocked()
	w.active = true
	w.fired = false

	remaining := w.timeout - time.Since(lastActivityAt)
	if remaining < 0 {
		remaining = 0
	}
	w.timer = time.AfterFunc(remaining, w.expire)
}

// Touch records a user interaction and reschedules expiry from the full
// timeout. Rescheduling cancels and replaces the pending timer; timers never
// stack. A touch on an inactive or already-expired watchdog is ignored.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active || w.fired {
		return
	}
	w.cancelLocked()
	w.timer = time.AfterFunc(w.timeout, w.expire)
}

// Stop disarms the watchdog and cancels the pending timer. Safe to call
// repeatedly and concurrently with expiry; after Stop returns, the callback
// will not fire for this activation.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = false
	w.cancelLocked()
}

// Active reports whether the watchdog is armed and has not yet expired.
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active && !w.fired
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	if !w.active || w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.active = false
	callback := w.onExpire
	w.mu.Unlock()

	// Outside the lock: the callback may re-arm the watchdog.
	callback()
}

func (w *Watchdog) cancelLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
