package transport

import (
	"sync"
	"time"
)

// watchdog turns per-frame progress into Ready and Stalled events. The first
// progress reports Ready; silence longer than timeout reports Stalled once;
// the next progress after a stall reports Ready again.
type watchdog struct {
	timeout time.Duration
	emit    Emitter

	mu      sync.Mutex
	timer   *time.Timer
	ready   bool
	stalled bool
	stopped bool
}

func newWatchdog(timeout time.Duration, emit Emitter) *watchdog {
	return &watchdog{timeout: timeout, emit: emit}
}

func (w *watchdog) progress() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	resumed := !w.ready || w.stalled
	w.ready = true
	w.stalled = false
	if w.timer == nil {
		w.timer = time.AfterFunc(w.timeout, w.expire)
	} else {
		w.timer.Reset(w.timeout)
	}
	w.mu.Unlock()

	now := time.Now()
	if resumed {
		w.emit(Event{Type: EventReady, At: now})
	}
	w.emit(Event{Type: EventProgress, At: now})
}

func (w *watchdog) expire() {
	w.mu.Lock()
	if w.stopped || w.stalled {
		w.mu.Unlock()
		return
	}
	w.stalled = true
	w.mu.Unlock()

	w.emit(Event{Type: EventStalled, Err: ErrStallTimeout, At: time.Now()})
}

func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
