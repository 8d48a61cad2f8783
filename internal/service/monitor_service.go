package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/interview"
	"github.com/stemsi/interview-coach/internal/model"
)

var (
	ErrSessionBusy     = errors.New("interview already has a live stream")
	ErrSessionNotFound = errors.New("interview has no live stream")
)

const (
	publishBuffer  = 64
	publishTimeout = 2 * time.Second
)

// MonitorService tracks the sessions running on this instance and mirrors
// their events to Redis for the live monitor.
type MonitorService struct {
	rdb     *redis.Client
	metrics *Metrics
	log     zerolog.Logger

	mu   sync.Mutex
	live map[uuid.UUID]*interview.Session
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, metrics *Metrics, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:     rdb,
		metrics: metrics,
		log:     log.With().Str("component", "monitor_service").Logger(),
		live:    make(map[uuid.UUID]*interview.Session),
	}
}

// Register claims the live slot of a session. A session accepts a single
// stream at a time.
func (s *MonitorService) Register(id uuid.UUID, session *interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; ok {
		return ErrSessionBusy
	}
	s.live[id] = session
	s.metrics.SessionStarted()
	return nil
}

// Unregister releases the live slot if it is still held by session.
func (s *MonitorService) Unregister(id uuid.UUID, session *interview.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.live[id]; !ok || cur != session {
		return
	}
	delete(s.live, id)

	_, reason := session.Result()
	s.metrics.SessionEnded(reason)
}

// Live returns the running session for id.
func (s *MonitorService) Live(id uuid.UUID) (*interview.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.live[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// LiveCount returns the number of sessions running on this instance.
func (s *MonitorService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Drain waits until every live session on this instance has unregistered.
func (s *MonitorService) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.LiveCount() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain live sessions: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Metrics exposes the shared counters.
func (s *MonitorService) Metrics() *Metrics {
	return s.metrics
}

// Snapshot returns the last published state of a running session.
func (s *MonitorService) Snapshot(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, config.CacheKey.InterviewLiveKey(id.String())).Result()
}

// NewPublisher returns the Redis side of a session: it observes session
// events and records integrity events to the audit queue. Delivery runs on
// its own goroutine so the session loop never waits on Redis.
func (s *MonitorService) NewPublisher(id uuid.UUID) *Publisher {
	p := &Publisher{
		id:      id,
		rdb:     s.rdb,
		metrics: s.metrics,
		log:     s.log.With().Str("session_id", id.String()).Logger(),
		channel: config.CacheKey.InterviewMonitorChannel(id.String()),
		liveKey: config.CacheKey.InterviewLiveKey(id.String()),
		queue:   make(chan outbound, publishBuffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

type outbound struct {
	event *interview.Event
	audit *model.IntegrityEvent
}

type auditPayload struct {
	SessionID string                   `json:"session_id"`
	Kind      model.IntegrityEventKind `json:"kind"`
	Timestamp int64                    `json:"timestamp"`
}

// Publisher forwards one session's events to Redis.
type Publisher struct {
	id      uuid.UUID
	rdb     *redis.Client
	metrics *Metrics
	log     zerolog.Logger

	channel string
	liveKey string

	queue     chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

// Notify implements interview.Observer.
func (p *Publisher) Notify(event interview.Event) {
	if lv, ok := event.Data.(interview.LevelEvent); ok && lv.To != integrity.LevelClean {
		p.metrics.IncrementWarnings()
	}
	p.enqueue(outbound{event: &event})
}

// RecordEvent implements integrity.EventSink.
func (p *Publisher) RecordEvent(event model.IntegrityEvent) {
	p.metrics.IncrementIntegrityEvents()
	p.enqueue(outbound{audit: &event})
}

// Close flushes queued items and stops the publisher.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.queue) })
	<-p.done
}

func (p *Publisher) enqueue(item outbound) {
	select {
	case p.queue <- item:
	default:
		p.metrics.IncrementPublishDropped()
		p.log.Warn().Msg("Publish queue full, dropping item")
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for item := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		switch {
		case item.audit != nil:
			p.pushAudit(ctx, item.audit)
		case item.event != nil:
			p.publish(ctx, item.event)
		}
		cancel()
	}
}

func (p *Publisher) pushAudit(ctx context.Context, ev *model.IntegrityEvent) {
	data, _ := json.Marshal(auditPayload{
		SessionID: p.id.String(),
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp,
	})
	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistIntegrityEventsQueue, data).Err(); err != nil {
		p.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Failed to queue integrity event")
	}
}

func (p *Publisher) publish(ctx context.Context, ev *interview.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, p.channel, data)
	if endsLive(ev) {
		// Earlier events in the queue may have recreated the snapshot after
		// the session was completed.
		pipe.Del(ctx, p.liveKey)
	} else if fields := liveFields(ev); len(fields) > 0 {
		fields["updated_at"] = strconv.FormatInt(ev.At.UnixMilli(), 10)
		pipe.HSet(ctx, p.liveKey, fields)
		pipe.Expire(ctx, p.liveKey, time.Hour)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish event")
	}
}

// liveFields flattens an event into the live snapshot hash.
func liveFields(ev *interview.Event) map[string]any {
	switch d := ev.Data.(type) {
	case interview.LevelEvent:
		return map[string]any{
			"level":       d.To.String(),
			"escalations": d.Escalations,
			"warnings":    d.Totals.WarningCount,
			"absence_ms":  d.Totals.TotalAbsenceDurationMs,
		}
	case interview.TickEvent:
		return map[string]any{
			"level":      d.Level.String(),
			"warnings":   d.Totals.WarningCount,
			"absence_ms": d.Totals.TotalAbsenceDurationMs,
			"remaining":  d.Timer.RemainingSeconds,
		}
	case interview.CountdownEvent:
		return map[string]any{
			"countdown_active":    d.Active,
			"countdown_remaining": d.Remaining,
		}
	case interview.QuestionEvent:
		return map[string]any{
			"question_index": d.Index,
			"question_total": d.Total,
		}
	case interview.CameraEvent:
		return map[string]any{"camera": string(d.State)}
	}
	return nil
}

// endsLive reports whether ev closes the session, after which no live
// snapshot may be kept.
func endsLive(ev *interview.Event) bool {
	return ev.Type == interview.EventFinished
}
