package core

import "time"

type Clock struct {
	now       func() time.Time
	startTime time.Time
	lastTick  time.Time
	elapsed   time.Duration
	delta     time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWithSource builds a clock reading time from now, for tests.
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.startTime.IsZero() {
		return
	}
	t := c.now()
	c.elapsed = t.Sub(c.startTime)
	c.delta = t.Sub(c.lastTick)
	c.lastTick = t
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.lastTick = c.startTime
	c.elapsed = 0
	c.delta = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Delta is the time between the last two updates.
func (c *Clock) Delta() time.Duration {
	return c.delta
}
