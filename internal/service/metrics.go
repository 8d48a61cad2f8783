package service

import (
	"sync/atomic"
	"time"

	"github.com/stemsi/interview-coach/internal/model"
)

// Metrics counts live integrity traffic for the system endpoint.
type Metrics struct {
	framesReceived atomic.Int64
	framesRejected atomic.Int64
	lastFrameTime  atomic.Int64

	liveSessions    atomic.Int32
	sessionsStarted atomic.Int64
	completed       atomic.Int64
	terminated      atomic.Int64
	abandoned       atomic.Int64

	integrityEvents atomic.Int64
	warnings        atomic.Int64
	publishDropped  atomic.Int64
}

// MetricsSnapshot is the JSON view of Metrics.
type MetricsSnapshot struct {
	FramesReceived     int64 `json:"frames_received"`
	FramesRejected     int64 `json:"frames_rejected"`
	LastFrameTime      int64 `json:"last_frame_time"`
	LiveSessions       int   `json:"live_sessions"`
	SessionsStarted    int64 `json:"sessions_started"`
	SessionsCompleted  int64 `json:"sessions_completed"`
	SessionsTerminated int64 `json:"sessions_terminated"`
	SessionsAbandoned  int64 `json:"sessions_abandoned"`
	IntegrityEvents    int64 `json:"integrity_events"`
	Warnings           int64 `json:"warnings"`
	PublishDropped     int64 `json:"publish_dropped"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncrementFrames() {
	m.framesReceived.Add(1)
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementRejectedFrames() {
	m.framesRejected.Add(1)
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Add(1)
	m.liveSessions.Add(1)
}

func (m *Metrics) SessionEnded(reason model.EndReason) {
	m.liveSessions.Add(-1)
	switch reason {
	case model.EndReasonCompleted:
		m.completed.Add(1)
	case model.EndReasonTerminated:
		m.terminated.Add(1)
	default:
		m.abandoned.Add(1)
	}
}

func (m *Metrics) IncrementIntegrityEvents() {
	m.integrityEvents.Add(1)
}

func (m *Metrics) IncrementWarnings() {
	m.warnings.Add(1)
}

func (m *Metrics) IncrementPublishDropped() {
	m.publishDropped.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesReceived:     m.framesReceived.Load(),
		FramesRejected:     m.framesRejected.Load(),
		LastFrameTime:      m.lastFrameTime.Load(),
		LiveSessions:       int(m.liveSessions.Load()),
		SessionsStarted:    m.sessionsStarted.Load(),
		SessionsCompleted:  m.completed.Load(),
		SessionsTerminated: m.terminated.Load(),
		SessionsAbandoned:  m.abandoned.Load(),
		IntegrityEvents:    m.integrityEvents.Load(),
		Warnings:           m.warnings.Load(),
		PublishDropped:     m.publishDropped.Load(),
	}
}
