package integrity

import (
	"time"
)

// Level is the distraction escalation level.
type Level int

const (
	LevelClean Level = iota
	LevelWarn1
	LevelWarn2
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelClean:
		return "clean"
	case LevelWarn1:
		return "warn1"
	case LevelWarn2:
		return "warn2"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level as its wire name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Transition describes one change (or non-change) of the machine.
type Transition struct {
	From        Level     `json:"from"`
	To          Level     `json:"to"`
	At          time.Time `json:"at"`
	Escalations int       `json:"escalations"`
	// StartCountdown is set only on the transition that enters Critical.
	StartCountdown bool `json:"-"`
}

// Changed reports whether the level moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// DistractionStateMachine escalates Clean → Warn1 → Warn2 → Critical on
// distraction triggers. Warnings auto-clear after a dwell time; Critical
// only leaves through Affirm.
type DistractionStateMachine struct {
	dwell         time.Duration
	criticalAfter int
	recorder      *Recorder

	level       Level
	escalations int
	clearAt     time.Time
}

// NewDistractionStateMachine creates a machine in Clean that counts
// warnings into rec.
func NewDistractionStateMachine(cfg Config, rec *Recorder) *DistractionStateMachine {
	criticalAfter := cfg.CriticalAfter
	if criticalAfter < 1 {
		criticalAfter = 3
	}
	return &DistractionStateMachine{
		dwell:         cfg.WarningDwell,
		criticalAfter: criticalAfter,
		recorder:      rec,
	}
}

// Level returns the current level.
func (m *DistractionStateMachine) Level() Level {
	return m.level
}

// Escalations returns the monotonic trigger count.
func (m *DistractionStateMachine) Escalations() int {
	return m.escalations
}

// Trigger handles one distraction trigger.
func (m *DistractionStateMachine) Trigger(now time.Time) Transition {
	from := m.level
	m.escalations++
	m.recorder.AddWarning()

	switch {
	case m.escalations >= m.criticalAfter:
		m.level = LevelCritical
		m.clearAt = time.Time{}
	case m.escalations == m.criticalAfter-1 && m.criticalAfter > 2:
		m.level = LevelWarn2
		m.clearAt = now.Add(m.dwell)
	default:
		m.level = LevelWarn1
		m.clearAt = now.Add(m.dwell)
	}

	return Transition{
		From:           from,
		To:             m.level,
		At:             now,
		Escalations:    m.escalations,
		StartCountdown: m.level == LevelCritical && from != LevelCritical,
	}
}

// Advance auto-clears a warning whose dwell time has passed.
func (m *DistractionStateMachine) Advance(now time.Time) Transition {
	from := m.level
	if (m.level == LevelWarn1 || m.level == LevelWarn2) && !m.clearAt.IsZero() && !now.Before(m.clearAt) {
		m.level = LevelClean
		m.clearAt = time.Time{}
	}
	return Transition{From: from, To: m.level, At: now, Escalations: m.escalations}
}

// Affirm is the candidate's "I'm here". It drops the level to Clean but keeps
// the escalation count and every recorded warning.
func (m *DistractionStateMachine) Affirm(now time.Time) Transition {
	from := m.level
	m.level = LevelClean
	m.clearAt = time.Time{}
	return Transition{From: from, To: m.level, At: now, Escalations: m.escalations}
}
