package service

import (
	"testing"

	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded(model.EndReasonCompleted)
	m.SessionEnded(model.EndReasonTerminated)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.LiveSessions)
	assert.EqualValues(t, 3, snap.SessionsStarted)
	assert.EqualValues(t, 1, snap.SessionsCompleted)
	assert.EqualValues(t, 1, snap.SessionsTerminated)
	assert.Zero(t, snap.SessionsAbandoned)

	m.SessionEnded(model.EndReasonAbandoned)
	assert.EqualValues(t, 1, m.Snapshot().SessionsAbandoned)
}

func TestMetrics_Frames(t *testing.T) {
	m := NewMetrics()

	m.IncrementFrames()
	m.IncrementFrames()
	m.IncrementRejectedFrames()

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.FramesReceived)
	assert.EqualValues(t, 1, snap.FramesRejected)
	assert.NotZero(t, snap.LastFrameTime)
}
