package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func runWithTimeout(t *testing.T, loop *EventLoop) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		loop.Stop()
		t.Fatal("loop did not stop in time")
	}
}

func TestEventLoop_PostOrder(t *testing.T) {
	loop := NewEventLoop()
	var got []int
	for i := range 5 {
		loop.Post(func() { got = append(got, i) })
	}
	loop.Post(loop.Stop)

	runWithTimeout(t, loop)

	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want 0..4 in order", got)
		}
	}
	if len(got) != 5 {
		t.Errorf("ran %d callbacks, want 5", len(got))
	}
}

func TestEventLoop_StopLeavesQueued(t *testing.T) {
	loop := NewEventLoop()
	ran := false
	loop.Post(loop.Stop)
	loop.Post(func() { ran = true })

	runWithTimeout(t, loop)

	if ran {
		t.Error("callback after Stop should not run")
	}
	// Running again picks up where it left off.
	loop.Post(loop.Stop)
	runWithTimeout(t, loop)
	if !ran {
		t.Error("queued callback did not run on restart")
	}
}

func TestEventLoop_PostFromGoroutines(t *testing.T) {
	loop := NewEventLoop()
	const n = 100

	count := 0
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			loop.Post(func() {
				count++
				if count == n {
					loop.Stop()
				}
			})
		}()
	}

	runWithTimeout(t, loop)
	wg.Wait()

	if count != n {
		t.Errorf("count = %d, want %d", count, n)
	}
}

func TestTimer_Expires(t *testing.T) {
	loop := NewEventLoop()
	timer := NewTimer(loop)

	var got []error
	timer.AsyncWait(10*time.Millisecond, func(err error) {
		got = append(got, err)
		loop.Stop()
	})

	runWithTimeout(t, loop)

	if len(got) != 1 || got[0] != nil {
		t.Errorf("handler calls = %v, want [nil]", got)
	}

	// Cancel after expiry is a no-op.
	timer.Cancel()
	loop.Post(loop.Stop)
	runWithTimeout(t, loop)
	if len(got) != 1 {
		t.Errorf("Cancel after expiry posted a handler: %v", got)
	}
}

func TestTimer_Cancel(t *testing.T) {
	loop := NewEventLoop()
	timer := NewTimer(loop)

	var got []error
	timer.AsyncWait(time.Hour, func(err error) {
		got = append(got, err)
		loop.Stop()
	})
	loop.Post(timer.Cancel)

	runWithTimeout(t, loop)

	if len(got) != 1 || !errors.Is(got[0], ErrTimerCancelled) {
		t.Errorf("handler calls = %v, want [ErrTimerCancelled]", got)
	}
}

func TestTimer_RearmCancelsPrevious(t *testing.T) {
	loop := NewEventLoop()
	timer := NewTimer(loop)

	var first, second []error
	timer.AsyncWait(time.Hour, func(err error) { first = append(first, err) })
	timer.AsyncWait(5*time.Millisecond, func(err error) {
		second = append(second, err)
		loop.Stop()
	})

	runWithTimeout(t, loop)

	if len(first) != 1 || !errors.Is(first[0], ErrTimerCancelled) {
		t.Errorf("first handler = %v, want [ErrTimerCancelled]", first)
	}
	if len(second) != 1 || second[0] != nil {
		t.Errorf("second handler = %v, want [nil]", second)
	}
}
