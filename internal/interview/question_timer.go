package interview

import (
	"time"

	"github.com/stemsi/interview-coach/internal/model"
)

const (
	technicalQuestionTime  = 3 * time.Minute
	behavioralQuestionTime = 2 * time.Minute

	amberThreshold = 30
	redThreshold   = 10
)

// DurationFor picks the answer time for a question. Mixed interviews use the
// question's own category.
func DurationFor(interviewType model.InterviewType, category string) time.Duration {
	switch interviewType {
	case model.InterviewTypeTechnical:
		return technicalQuestionTime
	case model.InterviewTypeBehavioral:
		return behavioralQuestionTime
	}
	if category == string(model.InterviewTypeTechnical) {
		return technicalQuestionTime
	}
	return behavioralQuestionTime
}

// Urgency is the colour band of the countdown ring.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyAmber  Urgency = "amber"
	UrgencyRed    Urgency = "red"
)

// TimerState is the wire view of a question timer.
type TimerState struct {
	TotalSeconds     int     `json:"totalSeconds"`
	RemainingSeconds int     `json:"remainingSeconds"`
	Urgency          Urgency `json:"urgency"`
}

// QuestionTimer counts down the answer time of one question. A new timer is
// created for every question shown; timers are never reused.
type QuestionTimer struct {
	total     time.Duration
	startedAt time.Time
	deadline  time.Time
	expired   bool
}

// NewQuestionTimer starts a timer of length total at now.
func NewQuestionTimer(total time.Duration, now time.Time) *QuestionTimer {
	return &QuestionTimer{
		total:     total,
		startedAt: now,
		deadline:  now.Add(total),
	}
}

// Remaining returns the whole seconds left, rounded up.
func (t *QuestionTimer) Remaining(now time.Time) int {
	left := t.deadline.Sub(now)
	if t.expired || left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Elapsed returns the whole seconds spent on the question so far.
func (t *QuestionTimer) Elapsed(now time.Time) int {
	spent := now.Sub(t.startedAt)
	if spent > t.total {
		spent = t.total
	}
	if spent < 0 {
		return 0
	}
	return int((spent + time.Second/2) / time.Second)
}

// Advance reports the seconds left and whether the timer ran out on this
// call. Expiry is reported once.
func (t *QuestionTimer) Advance(now time.Time) (remaining int, expired bool) {
	if t.expired {
		return 0, false
	}
	if now.Before(t.deadline) {
		return t.Remaining(now), false
	}
	t.expired = true
	return 0, true
}

// State returns the wire view at now.
func (t *QuestionTimer) State(now time.Time) TimerState {
	remaining := t.Remaining(now)
	return TimerState{
		TotalSeconds:     int(t.total / time.Second),
		RemainingSeconds: remaining,
		Urgency:          urgencyFor(remaining),
	}
}

func urgencyFor(remaining int) Urgency {
	switch {
	case remaining <= redThreshold:
		return UrgencyRed
	case remaining <= amberThreshold:
		return UrgencyAmber
	default:
		return UrgencyNormal
	}
}
