package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stemsi/interview-coach/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AuditWriter persists integrity audit rows.
type AuditWriter interface {
	CopyAuditEvents(ctx context.Context, events []repository.AuditEvent) (int64, error)
	InsertAuditEvent(ctx context.Context, event repository.AuditEvent) error
}

// IntegrityWorker drains the integrity event queue into the audit table in
// batches.
type IntegrityWorker struct {
	store AuditWriter
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewIntegrityWorker(store AuditWriter, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "integrity_worker").Logger(),
	}
}

type integrityEventPayload struct {
	SessionID string                   `json:"session_id"`
	Kind      model.IntegrityEventKind `json:"kind"`
	Timestamp int64                    `json:"timestamp"`
}

func (p *integrityEventPayload) toAudit() (repository.AuditEvent, error) {
	id, err := uuid.Parse(p.SessionID)
	if err != nil {
		return repository.AuditEvent{}, fmt.Errorf("parse session id: %w", err)
	}
	switch p.Kind {
	case model.EventFaceLeft, model.EventFaceReturned, model.EventGazeAway:
	default:
		return repository.AuditEvent{}, fmt.Errorf("unknown event kind %q", p.Kind)
	}
	return repository.AuditEvent{
		SessionID:  id,
		Kind:       p.Kind,
		RecordedAt: time.UnixMilli(p.Timestamp).UTC(),
	}, nil
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	buffer := make([]*integrityEventPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIntegrityEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var payload integrityEventPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, &payload)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues what
// still failed.
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*integrityEventPayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		if failed := w.fallbackInsert(ctx, batch); len(failed) > 0 {
			w.requeue(ctx, failed)
		}
	}
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []*integrityEventPayload) error {
	rows := make([]repository.AuditEvent, 0, len(batch))
	for _, p := range batch {
		ev, err := p.toAudit()
		if err != nil {
			// the fallback drops the bad row individually
			return err
		}
		rows = append(rows, ev)
	}
	_, err := w.store.CopyAuditEvents(ctx, rows)
	return err
}

// fallbackInsert returns the payloads that failed to insert.
func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []*integrityEventPayload) []*integrityEventPayload {
	var failed []*integrityEventPayload

	for _, p := range batch {
		ev, err := p.toAudit()
		if err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Dropping invalid integrity event")
			continue
		}
		if err := w.store.InsertAuditEvent(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Insert failed, requeueing")
			failed = append(failed, p)
		}
	}
	return failed
}

func (w *IntegrityWorker) requeue(ctx context.Context, items []*integrityEventPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistIntegrityEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue integrity events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// back off while the database is down
	time.Sleep(2 * time.Second)
}

func (w *IntegrityWorker) shutdown(buffer []*integrityEventPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
