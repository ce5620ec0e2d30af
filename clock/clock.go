// Package clock abstracts time for the acquisition loop so that poll
// intervals and timeouts can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of clockwork.Clock used by the poll loop.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
	// Sleep pauses for at least d.
	Sleep(d time.Duration)
}

// Real returns the wall clock.
func Real() Clock { return clockwork.NewRealClock() }

// FakeClock is a deterministic Clock over a clockwork fake. Every After or
// Sleep call moves the clock forward by its duration and completes at
// once, so a single goroutine waiting on the clock never blocks. Advance
// moves time forward explicitly.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	fake *clockwork.FakeClock

	mu     sync.Mutex
	waited time.Duration
	calls  int
}

// Fake returns a FakeClock initialized to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{fake: clockwork.NewFakeClockAt(initial)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time { return c.fake.Now() }

// After advances the clock by d and returns a ready channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.wait(d)
	return ch
}

// Sleep advances the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.wait(d)
}

// Advance moves the clock forward by d without counting as a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.fake.Advance(d)
}

// Waited returns the total duration spent in After and Sleep, and the
// number of such calls.
func (c *FakeClock) Waited() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waited, c.calls
}

func (c *FakeClock) wait(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if d > 0 {
		c.fake.Advance(d)
		c.waited += d
	}
	return c.fake.Now()
}
