package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/interview-coach/internal/model"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const (
	// maxPage keeps the list offset far from integer overflow.
	maxPage = 1_000_000
	// maxProfessionGroups is how many professions the stats break down.
	maxProfessionGroups = 8
)

// openStatuses are the sessions that may still be streaming.
var openStatuses = []model.SessionStatus{model.SessionStatusPending, model.SessionStatusInProgress}

// InterviewRepository handles interview session and answer data access.
type InterviewRepository struct {
	pool *pgxpool.Pool
}

// NewInterviewRepository creates a new InterviewRepository.
func NewInterviewRepository(pool *pgxpool.Pool) *InterviewRepository {
	return &InterviewRepository{pool: pool}
}

// Create inserts a new pending session.
func (r *InterviewRepository) Create(ctx context.Context, s *model.InterviewSession) error {
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO interview_sessions (id, profession, level, interview_type, question_count, include_challenge, questions, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		s.ID, s.Profession, s.Level, s.InterviewType, s.QuestionCount, s.IncludeChallenge, questions, s.Status,
	).Scan(&s.CreatedAt)
}

// GetByID retrieves a session without its answers.
func (r *InterviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	s := &model.InterviewSession{}
	var questions []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, profession, level, interview_type, question_count, include_challenge,
		        questions, status, end_reason, created_at, finished_at
		 FROM interview_sessions
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.Profession, &s.Level, &s.InterviewType, &s.QuestionCount, &s.IncludeChallenge,
		&questions, &s.Status, &s.EndReason, &s.CreatedAt, &s.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return s, nil
}

// ListAnswers returns the persisted answers of a session.
func (r *InterviewRepository) ListAnswers(ctx context.Context, id uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, time_taken_seconds, updated_at
		 FROM interview_answers
		 WHERE session_id = $1
		 ORDER BY updated_at`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.Text, &a.TimeTaken, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpsertAnswer creates or overwrites the answer to one question.
func (r *InterviewRepository) UpsertAnswer(ctx context.Context, sessionID uuid.UUID, a model.Answer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO interview_answers (session_id, question_id, answer, time_taken_seconds, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer,
		     time_taken_seconds = EXCLUDED.time_taken_seconds,
		     updated_at = EXCLUDED.updated_at`,
		sessionID, a.QuestionID, a.Text, a.TimeTaken, a.UpdatedAt,
	)
	return err
}

// MarkInProgress moves a pending session to IN_PROGRESS.
func (r *InterviewRepository) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE interview_sessions SET status = $1
		 WHERE id = $2 AND status = $3`,
		model.SessionStatusInProgress, id, model.SessionStatusPending)
	return err
}

// Complete closes a session. Sessions that already ended keep their first
// outcome.
func (r *InterviewRepository) Complete(ctx context.Context, id uuid.UUID, reason model.EndReason, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE interview_sessions
		 SET status = $1, end_reason = $2, finished_at = $3
		 WHERE id = $4 AND status IN ($5, $6)`,
		reason.Status(), reason, at, id, model.SessionStatusPending, model.SessionStatusInProgress)
	return err
}

// Delete removes a session with its answers and integrity record.
func (r *InterviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM interview_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List returns a page of history rows joined with their integrity verdict,
// newest first, plus the total number of matching rows.
func (r *InterviewRepository) List(ctx context.Context, f model.InterviewFilter) ([]model.InterviewSummary, int64, error) {
	where := squirrel.And{}
	if f.InterviewType != nil {
		where = append(where, squirrel.Eq{"s.interview_type": *f.InterviewType})
	}
	if f.Status != nil {
		where = append(where, squirrel.Eq{"s.status": *f.Status})
	}
	if f.Verdict != nil {
		where = append(where, squirrel.Eq{"i.verdict": *f.Verdict})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").
		From("interview_sessions s").
		LeftJoin("interview_integrity i ON i.session_id = s.id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := clampPage(f.Page, f.PerPage)

	listSQL, args, err := psql.Select(
		"s.id", "s.profession", "s.level", "s.interview_type", "s.question_count",
		"s.status", "s.created_at", "i.score", "i.verdict",
	).
		From("interview_sessions s").
		LeftJoin("interview_integrity i ON i.session_id = s.id").
		Where(where).
		OrderBy("s.created_at DESC").
		Limit(uint64(perPage)).
		Offset(pageOffset(page, perPage)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]model.InterviewSummary, 0, perPage)
	for rows.Next() {
		var s model.InterviewSummary
		if err := rows.Scan(&s.ID, &s.Profession, &s.Level, &s.InterviewType, &s.QuestionCount,
			&s.Status, &s.CreatedAt, &s.IntegrityScore, &s.Verdict); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func pageOffset(page, perPage int) uint64 {
	return uint64(page-1) * uint64(perPage)
}

func deleteFinishedQuery() squirrel.DeleteBuilder {
	return psql.Delete("interview_sessions").
		Where(squirrel.NotEq{"status": openStatuses}).
		Suffix("RETURNING id")
}

// DeleteFinished removes every session that can no longer stream and
// returns their ids. Pending and running sessions are kept.
func (r *InterviewRepository) DeleteFinished(ctx context.Context) ([]uuid.UUID, error) {
	sql, args, err := deleteFinishedQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Stats aggregates the history. Activity counts sessions created since the
// given instant.
func (r *InterviewRepository) Stats(ctx context.Context, activitySince time.Time) (*model.InterviewStats, error) {
	st := &model.InterviewStats{
		ScoreByType:       []model.GroupScore{},
		ScoreByProfession: []model.GroupScore{},
		VerdictCounts:     map[model.Verdict]int64{},
		Activity:          map[string]int64{},
	}

	totals := psql.Select(
		"COUNT(*)", "COUNT(i.score)",
		"COALESCE(ROUND(AVG(i.score)), 0)::int", "COALESCE(MAX(i.score), 0)::int",
	).
		From("interview_sessions s").
		LeftJoin("interview_integrity i ON i.session_id = s.id")
	if err := r.queryRow(ctx, totals, &st.TotalSessions, &st.ScoredSessions, &st.AverageScore, &st.BestScore); err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	answerTime := psql.Select("COALESCE(ROUND(AVG(time_taken_seconds)), 0)::int").
		From("interview_answers").
		Where(squirrel.Gt{"time_taken_seconds": 0})
	if err := r.queryRow(ctx, answerTime, &st.AverageTimeSeconds); err != nil {
		return nil, fmt.Errorf("stats answer time: %w", err)
	}

	byType := scoreGroups("s.interview_type").OrderBy("s.interview_type")
	if err := r.collectGroups(ctx, byType, &st.ScoreByType); err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}

	byProfession := scoreGroups("s.profession").OrderBy("2 DESC", "s.profession").Limit(maxProfessionGroups)
	if err := r.collectGroups(ctx, byProfession, &st.ScoreByProfession); err != nil {
		return nil, fmt.Errorf("stats by profession: %w", err)
	}

	verdicts := psql.Select("verdict", "COUNT(*)").From("interview_integrity").GroupBy("verdict")
	err := r.eachRow(ctx, verdicts, func(rows pgx.Rows) error {
		var v model.Verdict
		var n int64
		if err := rows.Scan(&v, &n); err != nil {
			return err
		}
		st.VerdictCounts[v] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats verdicts: %w", err)
	}

	activity := psql.Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')", "COUNT(*)").
		From("interview_sessions").
		Where(squirrel.GtOrEq{"created_at": activitySince}).
		GroupBy("1")
	err = r.eachRow(ctx, activity, func(rows pgx.Rows) error {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return err
		}
		st.Activity[day] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats activity: %w", err)
	}

	return st, nil
}

func scoreGroups(column string) squirrel.SelectBuilder {
	return psql.Select(column, "ROUND(AVG(i.score))::int", "COUNT(*)").
		From("interview_sessions s").
		Join("interview_integrity i ON i.session_id = s.id").
		GroupBy(column)
}

func (r *InterviewRepository) queryRow(ctx context.Context, b squirrel.SelectBuilder, dest ...any) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, sql, args...).Scan(dest...)
}

func (r *InterviewRepository) eachRow(ctx context.Context, b squirrel.SelectBuilder, fn func(pgx.Rows) error) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return err
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *InterviewRepository) collectGroups(ctx context.Context, b squirrel.SelectBuilder, dest *[]model.GroupScore) error {
	return r.eachRow(ctx, b, func(rows pgx.Rows) error {
		var g model.GroupScore
		if err := rows.Scan(&g.Group, &g.Score, &g.Count); err != nil {
			return err
		}
		*dest = append(*dest, g)
		return nil
	})
}
