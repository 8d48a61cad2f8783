package integrity

import (
	"time"

	"github.com/stemsi/interview-coach/internal/model"
)

// EventSink receives every integrity event as it is appended.
type EventSink interface {
	RecordEvent(event model.IntegrityEvent)
}

// Totals are the running counters the score is computed from.
type Totals struct {
	WarningCount           int   `json:"warningCount"`
	TotalAbsenceDurationMs int64 `json:"totalAbsenceDurationMs"`
}

// AbsenceEpisode is a contiguous interval judged absent. End is nil while the
// episode is open.
type AbsenceEpisode struct {
	Start time.Time
	End   *time.Time
}

// Open reports whether presence has not resumed yet.
func (e AbsenceEpisode) Open() bool {
	return e.End == nil
}

// Duration returns the episode length, charging an open episode up to now.
func (e AbsenceEpisode) Duration(now time.Time) time.Duration {
	end := now
	if e.End != nil {
		end = *e.End
	}
	if end.Before(e.Start) {
		return 0
	}
	return end.Sub(e.Start)
}

// Recorder is the append-only integrity log. Every mutation updates the
// running totals immediately, so finalizing never replays the log.
type Recorder struct {
	events []model.IntegrityEvent
	totals Totals
	open   *AbsenceEpisode
	sink   EventSink
	final  *model.IntegrityData
}

// NewRecorder creates an empty Recorder. sink may be nil.
func NewRecorder(sink EventSink) *Recorder {
	return &Recorder{sink: sink}
}

// Finalized reports whether the record has been sealed.
func (r *Recorder) Finalized() bool {
	return r.final != nil
}

// BeginAbsence opens an episode and logs kind. It is a no-op while an
// episode is already open or after finalization.
func (r *Recorder) BeginAbsence(kind model.IntegrityEventKind, now time.Time) bool {
	if r.final != nil || r.open != nil {
		return false
	}
	r.open = &AbsenceEpisode{Start: now}
	r.append(kind, now)
	return true
}

// EndAbsence closes the open episode, logs face_returned and charges its
// duration to the totals.
func (r *Recorder) EndAbsence(now time.Time) (AbsenceEpisode, bool) {
	if r.final != nil || r.open == nil {
		return AbsenceEpisode{}, false
	}
	ep := r.closeOpen(now)
	r.append(model.EventFaceReturned, now)
	return ep, true
}

// AddWarning counts one escalation step. Warnings are never taken back.
func (r *Recorder) AddWarning() {
	if r.final != nil {
		return
	}
	r.totals.WarningCount++
}

// Totals returns the running counters.
func (r *Recorder) Totals() Totals {
	return r.totals
}

// OpenEpisode returns a copy of the open episode, if any.
func (r *Recorder) OpenEpisode() (AbsenceEpisode, bool) {
	if r.open == nil {
		return AbsenceEpisode{}, false
	}
	return *r.open, true
}

// Events returns a copy of the log.
func (r *Recorder) Events() []model.IntegrityEvent {
	out := make([]model.IntegrityEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Finalize seals the record. An open episode is charged up to now without a
// face_returned event. Later calls return the same record.
func (r *Recorder) Finalize(now time.Time) *model.IntegrityData {
	if r.final != nil {
		return r.final
	}
	if r.open != nil {
		r.closeOpen(now)
	}

	score := Score(r.totals.WarningCount, r.totals.TotalAbsenceDurationMs)
	r.final = &model.IntegrityData{
		Events:             r.Events(),
		WarningCount:       r.totals.WarningCount,
		TotalFaceAbsenceMs: r.totals.TotalAbsenceDurationMs,
		Score:              score,
		Verdict:            VerdictFor(score),
	}
	return r.final
}

func (r *Recorder) closeOpen(now time.Time) AbsenceEpisode {
	end := now
	if end.Before(r.open.Start) {
		end = r.open.Start
	}
	ep := AbsenceEpisode{Start: r.open.Start, End: &end}
	r.totals.TotalAbsenceDurationMs += ep.Duration(end).Milliseconds()
	r.open = nil
	return ep
}

func (r *Recorder) append(kind model.IntegrityEventKind, now time.Time) {
	ev := model.NewIntegrityEvent(kind, now)
	r.events = append(r.events, ev)
	if r.sink != nil {
		r.sink.RecordEvent(ev)
	}
}
