package component

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// fakeClock is a manually advanced clock so dispatch timers fire
// deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    uint64
	timers []fakeTimer
}

type fakeTimer struct {
	at uint64
	ch chan time.Time
}

func newFakeClock(now uint64) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) NowMillis() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now + uint64(d.Milliseconds())
	if at <= c.now {
		ch <- time.Time{}
		return ch
	}
	c.timers = append(c.timers, fakeTimer{at: at, ch: ch})
	return ch
}

// Advance moves time forward and fires every due timer.
func (c *fakeClock) Advance(ms uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.at <= c.now {
			t.ch <- time.Time{}
		} else {
			kept = append(kept, t)
		}
	}
	c.timers = kept
}

func testLogger() *logger.Logger {
	return logger.NewDefault("test")
}

// recvFrame reads the next frame of type T from a handle output, skipping
// other frames.
func recvFrame[T frame.Frame](t *testing.T, out <-chan frame.Frame) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-out:
			require.True(t, ok, "output closed while waiting for frame")
			if typed, match := f.(T); match {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitClose(t *testing.T, h *Handle) CloseReason {
	t.Helper()
	done := make(chan CloseReason, 1)
	go func() { done <- h.Wait() }()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close")
		return CloseReason{}
	}
}
