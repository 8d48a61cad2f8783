package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/model"
)

var (
	ErrInterviewNotFound     = errors.New("interview not found")
	ErrInterviewClosed       = errors.New("interview already finished")
	ErrQuestionCountMismatch = errors.New("number of questions does not match question_count")
	ErrIntegrityNotFound     = errors.New("integrity record not found")
)

// CreatedInterview is returned to the browser after creating a session.
type CreatedInterview struct {
	Session   *model.InterviewSession `json:"session"`
	Token     string                  `json:"token"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// answerPayload is the queue item consumed by the answer worker.
type answerPayload struct {
	SessionID string       `json:"session_id"`
	Answer    model.Answer `json:"answer"`
}

// activityWindow is how far back the stats activity map reaches.
const activityWindow = 365 * 24 * time.Hour

// InterviewStore is the Postgres side of the interview lifecycle.
type InterviewStore interface {
	Create(ctx context.Context, s *model.InterviewSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error)
	ListAnswers(ctx context.Context, id uuid.UUID) ([]model.Answer, error)
	UpsertAnswer(ctx context.Context, sessionID uuid.UUID, a model.Answer) error
	MarkInProgress(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, reason model.EndReason, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteFinished(ctx context.Context) ([]uuid.UUID, error)
	List(ctx context.Context, f model.InterviewFilter) ([]model.InterviewSummary, int64, error)
	Stats(ctx context.Context, activitySince time.Time) (*model.InterviewStats, error)
}

// IntegrityReader loads persisted integrity records.
type IntegrityReader interface {
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.IntegrityData, error)
}

// InterviewService handles the interview lifecycle and answer flow. It is
// the flow controller of running sessions.
type InterviewService struct {
	repo          InterviewStore
	integrityRepo IntegrityReader
	tokens        *TokenService
	rdb           *redis.Client
	cacheTTL      time.Duration
	log           zerolog.Logger
}

// NewInterviewService creates a new InterviewService.
func NewInterviewService(
	repo InterviewStore,
	integrityRepo IntegrityReader,
	tokens *TokenService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *InterviewService {
	return &InterviewService{
		repo:          repo,
		integrityRepo: integrityRepo,
		tokens:        tokens,
		rdb:           rdb,
		cacheTTL:      cfg.SessionExpiry,
		log:           log.With().Str("component", "interview_service").Logger(),
	}
}

// Create stores a new pending session and issues its session token.
func (s *InterviewService) Create(ctx context.Context, req *model.CreateInterviewRequest) (*CreatedInterview, error) {
	if len(req.Questions) != req.QuestionCount {
		return nil, ErrQuestionCountMismatch
	}

	session := &model.InterviewSession{
		ID:               uuid.New(),
		Profession:       req.Profession,
		Level:            req.Level,
		InterviewType:    req.InterviewType,
		QuestionCount:    req.QuestionCount,
		IncludeChallenge: req.IncludeChallenge,
		Questions:        req.Questions,
		Status:           model.SessionStatusPending,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create interview: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(session.ID)
	if err != nil {
		return nil, err
	}

	// The stream endpoint reads the payload from cache; a miss falls back
	// to Postgres.
	if payload, err := json.Marshal(session); err == nil {
		key := config.CacheKey.InterviewPayloadKey(session.ID.String())
		if err := s.rdb.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to cache interview payload")
		}
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("interview_type", string(session.InterviewType)).
		Int("questions", len(session.Questions)).
		Msg("Interview created")

	return &CreatedInterview{Session: session, Token: token, ExpiresAt: expiresAt}, nil
}

// Get returns a session with its answers. Answers still waiting in the
// persistence queue are read from the cache.
func (s *InterviewService) Get(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInterviewNotFound
		}
		return nil, fmt.Errorf("get interview: %w", err)
	}

	answers, err := s.repo.ListAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	byQuestion := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.InterviewAnswersKey(id.String())).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to read cached answers")
	}
	for qid, raw := range cached {
		var a model.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		if prev, ok := byQuestion[qid]; !ok || a.UpdatedAt.After(prev.UpdatedAt) {
			byQuestion[qid] = a
		}
	}

	session.Answers = make([]model.Answer, 0, len(byQuestion))
	for _, q := range session.Questions {
		if a, ok := byQuestion[q.ID]; ok {
			session.Answers = append(session.Answers, a)
		}
	}
	return session, nil
}

// LoadForStream returns an open session for the live stream, preferring the
// cached payload.
func (s *InterviewService) LoadForStream(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	var session *model.InterviewSession

	raw, err := s.rdb.Get(ctx, config.CacheKey.InterviewPayloadKey(id.String())).Bytes()
	if err == nil {
		var cached model.InterviewSession
		if json.Unmarshal(raw, &cached) == nil {
			session = &cached
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Payload cache read failed")
	}

	// The cached copy does not track status, so check Postgres either way.
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInterviewNotFound
		}
		return nil, fmt.Errorf("get interview: %w", err)
	}
	if stored.Status != model.SessionStatusPending && stored.Status != model.SessionStatusInProgress {
		return nil, ErrInterviewClosed
	}
	if session == nil {
		session = stored
	}
	session.Status = stored.Status
	return session, nil
}

// Start marks a session as in progress once its stream is attached.
func (s *InterviewService) Start(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkInProgress(ctx, id); err != nil {
		return fmt.Errorf("start interview: %w", err)
	}
	return nil
}

// List returns a page of the interview history.
func (s *InterviewService) List(ctx context.Context, filter model.InterviewFilter) ([]model.InterviewSummary, int64, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list interviews: %w", err)
	}
	return items, total, nil
}

// Delete removes a history entry and its cached state.
func (s *InterviewService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInterviewNotFound
		}
		return fmt.Errorf("delete interview: %w", err)
	}

	sid := id.String()
	if err := s.rdb.Del(ctx,
		config.CacheKey.InterviewPayloadKey(sid),
		config.CacheKey.InterviewAnswersKey(sid),
		config.CacheKey.InterviewLiveKey(sid),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sid).Msg("Failed to clear interview cache")
	}
	return nil
}

// ClearHistory deletes every finished session with its answers and
// integrity record. Sessions that are pending or running are kept.
func (s *InterviewService) ClearHistory(ctx context.Context) (int, error) {
	ids, err := s.repo.DeleteFinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, config.CacheKey.InterviewAnswersKey(id.String()))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn().Err(err).Int("sessions", len(ids)).Msg("Failed to clear cached answers")
	}

	s.log.Info().Int("sessions", len(ids)).Msg("History cleared")
	return len(ids), nil
}

// Stats aggregates the history for the analytics view.
func (s *InterviewService) Stats(ctx context.Context) (*model.InterviewStats, error) {
	st, err := s.repo.Stats(ctx, time.Now().Add(-activityWindow))
	if err != nil {
		return nil, fmt.Errorf("interview stats: %w", err)
	}
	return st, nil
}

// Integrity returns the persisted integrity record for the report view.
func (s *InterviewService) Integrity(ctx context.Context, id uuid.UUID) (*model.IntegrityData, error) {
	data, err := s.integrityRepo.GetBySession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrityNotFound
		}
		return nil, fmt.Errorf("get integrity: %w", err)
	}
	return data, nil
}

// SaveAnswer caches the answer and queues it for persistence. When Redis
// cannot take it the answer is written to Postgres directly.
func (s *InterviewService) SaveAnswer(ctx context.Context, sessionID uuid.UUID, answer model.Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	payload, err := json.Marshal(answerPayload{SessionID: sessionID.String(), Answer: answer})
	if err != nil {
		return fmt.Errorf("marshal answer payload: %w", err)
	}

	key := config.CacheKey.InterviewAnswersKey(sessionID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, answer.QuestionID, raw)
	pipe.Expire(ctx, key, s.cacheTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Str("question_id", answer.QuestionID).
			Msg("Answer queue unavailable, writing directly")
		if dbErr := s.repo.UpsertAnswer(ctx, sessionID, answer); dbErr != nil {
			return fmt.Errorf("save answer: %w", errors.Join(err, dbErr))
		}
	}
	return nil
}

// Complete records how a session ended.
func (s *InterviewService) Complete(ctx context.Context, sessionID uuid.UUID, reason model.EndReason) error {
	if err := s.repo.Complete(ctx, sessionID, reason, time.Now()); err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}

	sid := sessionID.String()
	if err := s.rdb.Del(ctx, config.CacheKey.InterviewPayloadKey(sid), config.CacheKey.InterviewLiveKey(sid)).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sid).Msg("Failed to clear live cache")
	}
	return nil
}
