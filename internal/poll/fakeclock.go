package poll

import (
	"sync"
	"time"
)

// FakeClock is a backoff.Clock and backoff.Timer whose waits complete
// instantly by advancing virtual time.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	ch     chan time.Time
	onWait func(time.Duration)
}

// NewFakeClock starts virtual time at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, ch: make(chan time.Time, 1)}
}

// Policy returns a policy driven by this clock.
func (f *FakeClock) Policy(interval, timeout time.Duration) Policy {
	return Policy{Interval: interval, Timeout: timeout, Clock: f, Timer: f}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves virtual time forward, e.g. to model a slow request.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Start records the wait, advances time by d and fires.
func (f *FakeClock) Start(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.waits = append(f.waits, d)
	now, hook := f.now, f.onWait
	f.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	select {
	case f.ch <- now:
	default:
	}
}

func (f *FakeClock) Stop() {}

func (f *FakeClock) C() <-chan time.Time { return f.ch }

// OnWait registers a hook run on every wait.
func (f *FakeClock) OnWait(fn func(time.Duration)) {
	f.mu.Lock()
	f.onWait = fn
	f.mu.Unlock()
}

// Waits returns the recorded wait durations.
func (f *FakeClock) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}
