package integrity_test

import (
	"testing"
	"time"

	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []model.IntegrityEvent
}

func (s *captureSink) RecordEvent(ev model.IntegrityEvent) {
	s.events = append(s.events, ev)
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func countTriggers(tr *integrity.PresenceTracker, seq []integrity.Classification) int {
	n := 0
	for i, c := range seq {
		if tr.Observe(c, at(float64(i))).Trigger {
			n++
		}
	}
	return n
}

func TestTracker_TwoConsecutiveAbsentTicksTriggerOnce(t *testing.T) {
	for _, absent := range []integrity.Classification{integrity.BlockedByObstruction, integrity.NoFaceDetected} {
		tr := integrity.NewPresenceTracker(2, integrity.NewRecorder(nil))
		seq := []integrity.Classification{integrity.Present, absent, absent, absent, absent}
		assert.Equal(t, 1, countTriggers(tr, seq), "absent kind %s", absent)
	}
}

func TestTracker_MixedAbsentKindsStillCountAsOneRun(t *testing.T) {
	tr := integrity.NewPresenceTracker(2, integrity.NewRecorder(nil))
	seq := []integrity.Classification{integrity.Present, integrity.NoFaceDetected, integrity.BlockedByObstruction}
	assert.Equal(t, 1, countTriggers(tr, seq))
}

func TestTracker_IsolatedAbsentTickDoesNotTrigger(t *testing.T) {
	tr := integrity.NewPresenceTracker(2, integrity.NewRecorder(nil))
	seq := []integrity.Classification{
		integrity.Present, integrity.NoFaceDetected, integrity.Present,
		integrity.BlockedByObstruction, integrity.Present,
	}
	assert.Equal(t, 0, countTriggers(tr, seq))
	assert.Equal(t, 0, tr.ConsecutiveAbsent())
}

func TestTracker_NewRunAfterPresenceTriggersAgain(t *testing.T) {
	tr := integrity.NewPresenceTracker(2, integrity.NewRecorder(nil))
	seq := []integrity.Classification{
		integrity.NoFaceDetected, integrity.NoFaceDetected, integrity.Present,
		integrity.NoFaceDetected, integrity.NoFaceDetected,
	}
	assert.Equal(t, 2, countTriggers(tr, seq))
}

func TestTracker_EpisodeLifecycleAndEvents(t *testing.T) {
	sink := &captureSink{}
	rec := integrity.NewRecorder(sink)
	tr := integrity.NewPresenceTracker(2, rec)

	obs := tr.Observe(integrity.BlockedByObstruction, at(1))
	require.NotNil(t, obs.Opened)
	assert.Equal(t, model.EventFaceLeft, *obs.Opened)

	obs = tr.Observe(integrity.NoFaceDetected, at(2))
	assert.Nil(t, obs.Opened, "only one episode may be open")
	assert.True(t, obs.Trigger)

	ep, open := rec.OpenEpisode()
	require.True(t, open)
	assert.Equal(t, at(1), ep.Start)

	obs = tr.Observe(integrity.Present, at(4.5))
	require.NotNil(t, obs.Closed)
	assert.Equal(t, 3500*time.Millisecond, obs.Closed.Duration(at(100)))
	_, open = rec.OpenEpisode()
	assert.False(t, open)

	assert.Equal(t, int64(3500), rec.Totals().TotalAbsenceDurationMs)
	assert.Equal(t, []model.IntegrityEvent{
		{Timestamp: at(1).UnixMilli(), Kind: model.EventFaceLeft},
		{Timestamp: at(4.5).UnixMilli(), Kind: model.EventFaceReturned},
	}, rec.Events())
	assert.Equal(t, rec.Events(), sink.events)
}

func TestTracker_NoFaceOpensGazeAway(t *testing.T) {
	rec := integrity.NewRecorder(nil)
	tr := integrity.NewPresenceTracker(2, rec)

	obs := tr.Observe(integrity.NoFaceDetected, at(0))
	require.NotNil(t, obs.Opened)
	assert.Equal(t, model.EventGazeAway, *obs.Opened)
}

func TestTracker_PresentWithoutEpisodeLogsNothing(t *testing.T) {
	rec := integrity.NewRecorder(nil)
	tr := integrity.NewPresenceTracker(2, rec)

	for i := 0; i < 5; i++ {
		obs := tr.Observe(integrity.Present, at(float64(i)))
		assert.Nil(t, obs.Closed)
	}
	assert.Empty(t, rec.Events())
	assert.Zero(t, rec.Totals().TotalAbsenceDurationMs)
}

func TestTracker_DebounceIsConfigurable(t *testing.T) {
	tr := integrity.NewPresenceTracker(3, integrity.NewRecorder(nil))
	seq := []integrity.Classification{integrity.NoFaceDetected, integrity.NoFaceDetected, integrity.Present}
	assert.Equal(t, 0, countTriggers(tr, seq))

	tr = integrity.NewPresenceTracker(3, integrity.NewRecorder(nil))
	seq = []integrity.Classification{integrity.NoFaceDetected, integrity.NoFaceDetected, integrity.NoFaceDetected}
	assert.Equal(t, 1, countTriggers(tr, seq))
}
