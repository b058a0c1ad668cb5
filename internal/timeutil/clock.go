// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTimer creates a new Timer that will send the current time
	// on its channel after at least duration d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single event timer.
type Timer interface {
	// C returns the channel on which the time is delivered.
	C() <-chan time.Time

	// Stop prevents the Timer from firing.
	Stop() bool
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()
}

// Ms converts a duration to fractional milliseconds.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Monotonic measures fractional milliseconds on a single monotonic timeline
// anchored at its creation. All components of one engine must share one
// Monotonic so their local timestamps are comparable.
type Monotonic struct {
	clock Clock
	epoch time.Time
}

// NewMonotonic anchors a millisecond timeline at the clock's current time.
func NewMonotonic(c Clock) *Monotonic {
	return &Monotonic{clock: c, epoch: c.Now()}
}

// NowMs returns milliseconds elapsed since the timeline epoch.
func (m *Monotonic) NowMs() float64 {
	return Ms(m.clock.Since(m.epoch))
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Sleep pauses the current goroutine for at least the duration d.
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTimer creates a new Timer.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }
func (t *realTimer) Stop() bool          { return t.timer.Stop() }

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepLag time.Duration
	sleeps   []time.Duration
	timers   []*MockTimer
	tickers  []*MockTicker
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// SetSleepLag makes every Sleep overshoot its requested duration by lag,
// simulating scheduler delay for jitter measurements.
func (c *MockClock) SetSleepLag(lag time.Duration) {
	c.mu.Lock()
	c.sleepLag = lag
	c.mu.Unlock()
}

// Sleep records the request and advances the mock clock by d plus the
// configured sleep lag. It returns immediately.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d + c.sleepLag)
	now := c.now
	timers := c.timers
	tickers := c.tickers
	c.mu.Unlock()

	for _, t := range timers {
		t.checkAndFire(now)
	}
	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

// Sleeps returns all recorded sleep durations.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.sleeps))
	copy(result, c.sleeps)
	return result
}

// Advance moves the mock clock forward by the given duration
// and fires any expired timers/tickers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := c.timers
	tickers := c.tickers
	c.mu.Unlock()

	for _, t := range timers {
		t.checkAndFire(now)
	}
	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

// After returns a channel that receives the time after duration d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer creates a new MockTimer.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTimer{
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
	}
	c.timers = append(c.timers, t)
	return t
}

// NewTicker creates a new MockTicker.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		nextTick: c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTimer is a manually controlled timer for testing.
type MockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	stopped  bool
	fired    bool
}

// C returns the timer channel.
func (t *MockTimer) C() <-chan time.Time { return t.ch }

// Stop prevents the timer from firing.
func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *MockTimer) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired {
		return
	}
	if !now.Before(t.deadline) {
		t.fired = true
		select {
		case t.ch <- now:
		default:
		}
	}
}

// MockTicker is a manually controlled ticker for testing.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	nextTick time.Time
	stopped  bool
}

// C returns the ticker channel.
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop turns off the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Trigger manually sends a tick with the given time.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if !now.Before(t.nextTick) {
		select {
		case t.ch <- now:
		default:
		}
		t.nextTick = now.Add(t.interval)
	}
}
