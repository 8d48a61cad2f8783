package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/model"
)

// LiveInterview is an in-progress session with the last state its stream
// published.
type LiveInterview struct {
	ID            uuid.UUID           `json:"id"`
	Profession    string              `json:"profession"`
	InterviewType model.InterviewType `json:"interview_type"`
	CreatedAt     time.Time           `json:"created_at"`
	State         map[string]string   `json:"state"`
}

// MonitorRepository combines PostgreSQL (session status) and Redis (live
// snapshots) for the operations view.
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ListInProgress returns every IN_PROGRESS session across all instances,
// oldest first, decorated with its live snapshot.
func (r *MonitorRepository) ListInProgress(ctx context.Context, limit int) ([]LiveInterview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, profession, interview_type, created_at
		 FROM interview_sessions
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		model.SessionStatusInProgress, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var live []LiveInterview
	for rows.Next() {
		var li LiveInterview
		if err := rows.Scan(&li.ID, &li.Profession, &li.InterviewType, &li.CreatedAt); err != nil {
			return nil, err
		}
		live = append(live, li)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return live, nil
	}

	// One round trip for all snapshots.
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(live))
	for i, li := range live {
		cmds[i] = pipe.HGetAll(ctx, config.CacheKey.InterviewLiveKey(li.ID.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i := range live {
		live[i].State = cmds[i].Val()
	}
	return live, nil
}
