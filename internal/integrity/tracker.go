package integrity

import (
	"time"

	"github.com/stemsi/interview-coach/internal/model"
)

// Observation is what one classification did to the tracker.
type Observation struct {
	// Trigger is set on the tick the absent run reaches the debounce length.
	Trigger bool
	// Opened is the event logged when an absence episode began on this tick.
	Opened *model.IntegrityEventKind
	// Closed is the episode that ended on this tick.
	Closed *AbsenceEpisode
}

// PresenceTracker turns a stream of classifications into absence episodes
// and debounced distraction triggers.
type PresenceTracker struct {
	debounce          int
	consecutiveAbsent int
	recorder          *Recorder
}

// NewPresenceTracker creates a tracker that logs episodes into rec.
func NewPresenceTracker(debounce int, rec *Recorder) *PresenceTracker {
	if debounce < 1 {
		debounce = 1
	}
	return &PresenceTracker{debounce: debounce, recorder: rec}
}

// ConsecutiveAbsent returns the length of the current absent run.
func (t *PresenceTracker) ConsecutiveAbsent() int {
	return t.consecutiveAbsent
}

// Observe consumes one classification taken at now.
func (t *PresenceTracker) Observe(c Classification, now time.Time) Observation {
	var obs Observation

	if !c.Absent() {
		t.consecutiveAbsent = 0
		if ep, ok := t.recorder.EndAbsence(now); ok {
			obs.Closed = &ep
		}
		return obs
	}

	t.consecutiveAbsent++

	kind := model.EventGazeAway
	if c == BlockedByObstruction {
		kind = model.EventFaceLeft
	}
	if t.recorder.BeginAbsence(kind, now) {
		obs.Opened = &kind
	}

	obs.Trigger = t.consecutiveAbsent == t.debounce
	return obs
}
