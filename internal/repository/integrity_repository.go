package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/interview-coach/internal/model"
)

// AuditEvent is one row of the integrity_events audit trail.
type AuditEvent struct {
	SessionID  uuid.UUID
	Kind       model.IntegrityEventKind
	RecordedAt time.Time
}

// IntegrityRepository stores finalized integrity records and the audit
// trail of integrity events.
type IntegrityRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrityRepository creates a new IntegrityRepository.
func NewIntegrityRepository(pool *pgxpool.Pool) *IntegrityRepository {
	return &IntegrityRepository{pool: pool}
}

// SaveIntegrity writes the record of a finished session. The first write
// wins; a second write for the same session is ignored.
func (r *IntegrityRepository) SaveIntegrity(ctx context.Context, sessionID uuid.UUID, data *model.IntegrityData) error {
	events, err := json.Marshal(data.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO interview_integrity (session_id, events, warning_count, total_face_absence_ms, score, verdict)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, events, data.WarningCount, data.TotalFaceAbsenceMs, data.Score, data.Verdict,
	)
	if err != nil {
		return fmt.Errorf("insert integrity: %w", err)
	}
	return nil
}

// GetBySession returns the persisted record of a session.
func (r *IntegrityRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.IntegrityData, error) {
	data := &model.IntegrityData{}
	var events []byte
	err := r.pool.QueryRow(ctx,
		`SELECT events, warning_count, total_face_absence_ms, score, verdict
		 FROM interview_integrity
		 WHERE session_id = $1`, sessionID,
	).Scan(&events, &data.WarningCount, &data.TotalFaceAbsenceMs, &data.Score, &data.Verdict)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &data.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	if data.Events == nil {
		data.Events = []model.IntegrityEvent{}
	}
	return data, nil
}

// CopyAuditEvents bulk inserts audit rows.
func (r *IntegrityRepository) CopyAuditEvents(ctx context.Context, events []AuditEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.SessionID, string(e.Kind), e.RecordedAt})
	}
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"integrity_events"},
		[]string{"session_id", "kind", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
}

// InsertAuditEvent inserts a single audit row.
func (r *IntegrityRepository) InsertAuditEvent(ctx context.Context, e AuditEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO integrity_events (session_id, kind, recorded_at) VALUES ($1, $2, $3)`,
		e.SessionID, string(e.Kind), e.RecordedAt,
	)
	return err
}

// CountAuditEvents returns the number of audit rows per event kind.
func (r *IntegrityRepository) CountAuditEvents(ctx context.Context, sessionID uuid.UUID) (map[model.IntegrityEventKind]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*)
		 FROM integrity_events
		 WHERE session_id = $1
		 GROUP BY kind`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.IntegrityEventKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[model.IntegrityEventKind(kind)] = n
	}
	return counts, rows.Err()
}
