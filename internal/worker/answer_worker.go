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
)

// AnswerWriter persists interview answers.
type AnswerWriter interface {
	UpsertAnswer(ctx context.Context, sessionID uuid.UUID, answer model.Answer) error
}

// AnswerWorker consumes the answers queue and UPSERTs answers to PostgreSQL.
type AnswerWorker struct {
	store AnswerWriter
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(store AnswerWriter, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "answer_worker").Logger(),
	}
}

type answerPayload struct {
	SessionID string       `json:"session_id"`
	Answer    model.Answer `json:"answer"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// handle persists one queue item. Malformed items are logged and dropped;
// the returned error means the item should be retried.
func (w *AnswerWorker) handle(ctx context.Context, raw string) error {
	var p answerPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed answer")
		return nil
	}
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil || p.Answer.QuestionID == "" {
		w.log.Error().Str("session_id", p.SessionID).Msg("Discarding answer without session or question")
		return nil
	}
	if p.Answer.UpdatedAt.IsZero() {
		p.Answer.UpdatedAt = time.Now()
	}

	if err := w.store.UpsertAnswer(ctx, sessionID, p.Answer); err != nil {
		return fmt.Errorf("upsert answer %s/%s: %w", p.SessionID, p.Answer.QuestionID, err)
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		if err := w.handle(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
