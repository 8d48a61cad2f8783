package integrity_test

import (
	"testing"
	"time"

	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stretchr/testify/assert"
)

func TestCountdown_RunsDownAndExpiresOnce(t *testing.T) {
	var c integrity.FinalCountdown

	assert.True(t, c.Start(at(0), 10))
	assert.Equal(t, 10, c.Remaining(at(0)))

	remaining, expired := c.Advance(at(0.2))
	assert.Equal(t, 10, remaining)
	assert.False(t, expired)

	remaining, expired = c.Advance(at(9.5))
	assert.Equal(t, 1, remaining)
	assert.False(t, expired)

	_, expired = c.Advance(at(10))
	assert.True(t, expired)
	assert.False(t, c.Active())

	_, expired = c.Advance(at(11))
	assert.False(t, expired, "expiry is reported exactly once")
}

func TestCountdown_StartIsIdempotentWhileRunning(t *testing.T) {
	var c integrity.FinalCountdown

	assert.True(t, c.Start(at(0), 10))
	assert.False(t, c.Start(at(5), 10))
	assert.Equal(t, 5, c.Remaining(at(5)), "second start must not extend the deadline")
}

func TestCountdown_CancelPreventsExpiry(t *testing.T) {
	var c integrity.FinalCountdown

	c.Start(at(0), 10)
	assert.True(t, c.Cancel())
	assert.False(t, c.Cancel())

	_, expired := c.Advance(at(30))
	assert.False(t, expired)
	assert.Zero(t, c.Remaining(at(1)))

	// a fresh start after cancel gets a fresh deadline
	assert.True(t, c.Start(at(40), 10))
	_, expired = c.Advance(at(49.9))
	assert.False(t, expired)
	_, expired = c.Advance(at(50))
	assert.True(t, expired)
}

func TestCountdown_AdvanceWithoutStartIsInert(t *testing.T) {
	var c integrity.FinalCountdown
	remaining, expired := c.Advance(time.Now())
	assert.Zero(t, remaining)
	assert.False(t, expired)
}
