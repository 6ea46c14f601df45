package repository

import (
	"context"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MonitorRepository provides data access for the live surveillance feature.
// It combines PostgreSQL (session state, violations) and Redis (live events).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// Redis returns the underlying Redis client, used by the SSE monitor to
// subscribe to the evaluation's live event channel.
func (r *MonitorRepository) Redis() *redis.Client {
	return r.rdb
}

// GetAnsweredCounts returns the count of answered questions for every
// participant who has at least one answer recorded in the given evaluation.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, evaluationID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT participant_id, COUNT(*)
		 FROM participant_answers
		 WHERE evaluation_id = $1 AND answer <> ''
		 GROUP BY participant_id`,
		evaluationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var pid int
		var count int64
		if err := rows.Scan(&pid, &count); err != nil {
			return nil, err
		}
		counts[pid] = count
	}
	return counts, rows.Err()
}

// GetViolationCounts returns the number of violations recorded per
// participant in the given evaluation.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, evaluationID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT participant_id, COUNT(*)
		 FROM session_violations
		 WHERE evaluation_id = $1
		 GROUP BY participant_id`,
		evaluationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var pid int
		var count int64
		if err := rows.Scan(&pid, &count); err != nil {
			return nil, err
		}
		counts[pid] = count
	}
	return counts, rows.Err()
}

// ListViolationsBySession returns the persisted violation timeline for one
// session, oldest first.
func (r *MonitorRepository) ListViolationsBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, evaluation_id, participant_id, kind, details, occurred_at
		 FROM session_violations
		 WHERE session_id = $1
		 ORDER BY occurred_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ViolationRecord
	for rows.Next() {
		var v model.ViolationRecord
		if err := rows.Scan(&v.ID, &v.SessionID, &v.EvaluationID, &v.ParticipantID,
			&v.Kind, &v.Details, &v.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, v)
	}
	return records, rows.Err()
}
