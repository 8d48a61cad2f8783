package integrity

import "time"

// FinalCountdown is the one-shot last-chance timer started on Critical.
// It has no goroutine: the owner advances it and Cancel clears the deadline,
// so an expiry can never be reported after Cancel returns.
type FinalCountdown struct {
	active   bool
	deadline time.Time
	total    int
}

// Start arms the countdown. It is a no-op returning false while running.
func (c *FinalCountdown) Start(now time.Time, seconds int) bool {
	if c.active {
		return false
	}
	if seconds < 1 {
		seconds = 1
	}
	c.active = true
	c.total = seconds
	c.deadline = now.Add(time.Duration(seconds) * time.Second)
	return true
}

// Cancel disarms the countdown. It reports whether one was running.
func (c *FinalCountdown) Cancel() bool {
	was := c.active
	c.active = false
	c.deadline = time.Time{}
	return was
}

// Active reports whether the countdown is armed.
func (c *FinalCountdown) Active() bool {
	return c.active
}

// Total returns the length the countdown was last started with.
func (c *FinalCountdown) Total() int {
	return c.total
}

// Remaining returns whole seconds left, rounded up. Zero when inactive.
func (c *FinalCountdown) Remaining(now time.Time) int {
	if !c.active {
		return 0
	}
	left := c.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Advance reports the seconds left and whether the countdown expired on this
// call. Expiry is reported exactly once; the countdown is inactive afterwards.
func (c *FinalCountdown) Advance(now time.Time) (remaining int, expired bool) {
	if !c.active {
		return 0, false
	}
	if now.Before(c.deadline) {
		return c.Remaining(now), false
	}
	c.active = false
	c.deadline = time.Time{}
	return 0, true
}
