// Package clock abstracts the monotonic time source the Timer Service
// schedules after(Δ) deadlines against (spec §4.5, §9 Open Questions:
// "recommend monotonic-clock scheduling" for backward clock jumps). A real
// clock delegates to time.Timer; a virtual clock (used by tests) lets a
// scenario fast-forward without sleeping in wall-clock time.
package clock

import "time"

type Clock interface {
	Now() time.Time
	Advance(d time.Duration)
	Reset()
	Sleep(d time.Duration)
	// After returns a channel that receives the current time once d has
	// elapsed according to this clock's notion of time.
	After(d time.Duration) <-chan time.Time
	// NewTimer is the stoppable counterpart to After, used by the Timer
	// Service so a cancelled after(Δ) transition can release its timer
	// before it fires (state exit, spec §4.5 "pending timers ... cancelled").
	NewTimer(d time.Duration) Timer
}

// Timer is the minimal surface the Timer Service needs from a scheduled
// wake, satisfied by both *time.Timer and the virtual clock's timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type Config struct {
	Multiplier int
	Frequency  time.Duration
}

var DefaultConfig = Config{
	Multiplier: 1,
	Frequency:  time.Nanosecond,
}

type clock struct {
	delta      time.Duration
	freq       time.Duration
	multiplier int
}

func (c clock) Now() time.Time {
	return time.Now().Add(c.delta)
}

func (c *clock) Advance(d time.Duration) {
	c.delta += d
}

func (c *clock) Reset() {
	c.delta = 0
}

func (c *clock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (c *clock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

func (c *clock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

func Make(config ...Config) Clock {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &clock{
		delta:      0,
		freq:       min(DefaultConfig.Frequency, cfg.Frequency),
		multiplier: min(1, cfg.Multiplier),
	}
}
