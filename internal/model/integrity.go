package model

import "time"

// IntegrityEventKind enumerates the audit events of the attention monitor.
type IntegrityEventKind string

const (
	EventFaceLeft     IntegrityEventKind = "face_left"
	EventFaceReturned IntegrityEventKind = "face_returned"
	EventGazeAway     IntegrityEventKind = "gaze_away"
)

// IntegrityEvent is one immutable entry of the integrity audit trail.
// Timestamp is Unix milliseconds.
type IntegrityEvent struct {
	Timestamp int64              `json:"timestamp"`
	Kind      IntegrityEventKind `json:"kind"`
}

// NewIntegrityEvent stamps an event at the given instant.
func NewIntegrityEvent(kind IntegrityEventKind, at time.Time) IntegrityEvent {
	return IntegrityEvent{Timestamp: at.UnixMilli(), Kind: kind}
}

// Verdict is the three-tier integrity summary shown on the report.
type Verdict string

const (
	VerdictHigh   Verdict = "High Integrity"
	VerdictMedium Verdict = "Medium Integrity"
	VerdictLow    Verdict = "Low Integrity"
)

// IntegrityData is the persisted integrity record of one finished session.
// The JSON field names are a storage contract shared with previously saved
// sessions and must not change.
type IntegrityData struct {
	Events             []IntegrityEvent `json:"events"`
	WarningCount       int              `json:"warningCount"`
	TotalFaceAbsenceMs int64            `json:"totalFaceAbsenceMs"`
	Score              int              `json:"score"`
	Verdict            Verdict          `json:"verdict"`
}
