// Package events provides a single-threaded cooperative event loop and
// cancellable timers.
//
// Every callback posted to an EventLoop runs on the goroutine that called
// Run, one at a time, in posting order. Other goroutines (process waiters,
// timer expiries) never touch caller state directly; they Post into the loop.
package events

import (
	"errors"
	"sync"
	"time"
)

// ErrTimerCancelled is passed to a timer handler when the wait was cancelled.
var ErrTimerCancelled = errors.New("timer cancelled")

// EventLoop runs posted callbacks serially.
type EventLoop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
}

// NewEventLoop creates an idle loop.
func NewEventLoop() *EventLoop {
	return &EventLoop{wake: make(chan struct{}, 1)}
}

// Post queues fn for execution on the loop goroutine. Safe for concurrent use.
// Callbacks posted while the loop is stopped stay queued until the next Run.
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Run executes callbacks until Stop is called. A previous Stop is cleared on
// entry, so a loop can be run again after it was stopped.
func (l *EventLoop) Run() {
	l.mu.Lock()
	l.stopped = false
	l.mu.Unlock()

	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Stop makes Run return after the callback currently executing, if any.
// Queued callbacks are left uninvoked. Safe for concurrent use.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.signal()
}

func (l *EventLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer delivers one expiry or cancellation per AsyncWait to the loop.
type Timer struct {
	loop *EventLoop

	mu      sync.Mutex
	timer   *time.Timer
	handler func(error)
	gen     uint64
}

// NewTimer creates a timer bound to loop.
func NewTimer(loop *EventLoop) *Timer {
	return &Timer{loop: loop}
}

// AsyncWait arms the timer. When d elapses, handler(nil) is posted to the
// loop; if Cancel is called first, handler(ErrTimerCancelled) is posted
// instead. Exactly one of the two happens. Arming an already armed timer
// cancels the earlier wait.
func (t *Timer) AsyncWait(d time.Duration, handler func(error)) {
	t.Cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	t.handler = handler
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.handler == nil {
		t.mu.Unlock()
		return
	}
	h := t.handler
	t.handler = nil
	t.timer = nil
	t.mu.Unlock()

	t.loop.Post(func() { h(nil) })
}

// Cancel aborts a pending wait. It is a no-op when nothing is pending.
func (t *Timer) Cancel() {
	t.mu.Lock()
	if t.handler == nil {
		t.mu.Unlock()
		return
	}
	h := t.handler
	t.handler = nil
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.loop.Post(func() { h(ErrTimerCancelled) })
}
