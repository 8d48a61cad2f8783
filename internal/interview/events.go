package interview

import (
	"time"

	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/model"
)

// EventType names a state change pushed to the client and the live monitor.
type EventType string

const (
	EventCamera    EventType = "camera"
	EventQuestion  EventType = "question"
	EventTick      EventType = "tick"
	EventLevel     EventType = "level"
	EventCountdown EventType = "countdown"
	EventFinished  EventType = "finished"
)

// Event is one notification emitted by a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

type CameraEvent struct {
	State  GateState `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Retry  bool      `json:"retry"`
}

type QuestionEvent struct {
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	Question model.Question `json:"question"`
	Draft    string         `json:"draft"`
	Timer    TimerState     `json:"timer"`
}

type TickEvent struct {
	Timer  TimerState       `json:"timer"`
	Level  integrity.Level  `json:"level"`
	Totals integrity.Totals `json:"totals"`
}

type LevelEvent struct {
	From        integrity.Level  `json:"from"`
	To          integrity.Level  `json:"to"`
	Escalations int              `json:"escalations"`
	Totals      integrity.Totals `json:"totals"`
}

type CountdownEvent struct {
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
}

type FinishedEvent struct {
	Reason    model.EndReason      `json:"reason"`
	Integrity *model.IntegrityData `json:"integrity"`
}

// Observer receives session events. Implementations must not block.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(event Event) { f(event) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Notify(event Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(event)
		}
	}
}
