package repository

import (
	"context"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvaluationResult combines participant data with their session outcome.
type EvaluationResult struct {
	ParticipantID  int                 `json:"participant_id"`
	Name           string              `json:"name"`
	Email          string              `json:"email"`
	Department     string              `json:"department"`
	FinalScore     *float64            `json:"score"`
	Reussi         *bool               `json:"reussi"`
	Status         model.SessionStatus `json:"status"`
	ViolationCount int                 `json:"violation_count"`
	StartedAt      *time.Time          `json:"started_at"`
	FinishedAt     *time.Time          `json:"finished_at"`
}

// SessionRepository handles evaluation session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByEvaluationAndParticipant retrieves the session for one attempt.
func (r *SessionRepository) GetByEvaluationAndParticipant(ctx context.Context, evaluationID uuid.UUID, participantID int) (*model.EvaluationSession, error) {
	s := &model.EvaluationSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, evaluation_id, participant_id, started_at, finished_at,
		        status, final_score, reussi, violation_count, question_order
		 FROM evaluation_sessions
		 WHERE evaluation_id = $1 AND participant_id = $2`, evaluationID, participantID,
	).Scan(&s.ID, &s.EvaluationID, &s.ParticipantID, &s.StartedAt, &s.FinishedAt,
		&s.Status, &s.FinalScore, &s.Reussi, &s.ViolationCount, &s.QuestionOrder)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session (participant joins the evaluation).
// The ON CONFLICT clause makes the join idempotent: rejoining an existing
// attempt returns no row, which the caller treats as a resume.
func (r *SessionRepository) Create(ctx context.Context, s *model.EvaluationSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO evaluation_sessions (evaluation_id, participant_id, status, question_order)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (evaluation_id, participant_id) DO NOTHING
		 RETURNING id, started_at`,
		s.EvaluationID, s.ParticipantID, model.SessionStatusInProgress, s.QuestionOrder,
	).Scan(&s.ID, &s.StartedAt)
}

// UpdateStatus sets a session's status without touching its score.
func (r *SessionRepository) UpdateStatus(ctx context.Context, evaluationID uuid.UUID, participantID int, status model.SessionStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE evaluation_sessions
		 SET status = $1, finished_at = COALESCE(finished_at, NOW())
		 WHERE evaluation_id = $2 AND participant_id = $3`,
		status, evaluationID, participantID)
	return err
}

// ListByParticipant retrieves all sessions for a participant.
func (r *SessionRepository) ListByParticipant(ctx context.Context, participantID int) ([]model.EvaluationSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, evaluation_id, participant_id, started_at, finished_at,
		        status, final_score, reussi, violation_count, question_order
		 FROM evaluation_sessions
		 WHERE participant_id = $1
		 ORDER BY started_at DESC`, participantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.EvaluationSession
	for rows.Next() {
		var s model.EvaluationSession
		if err := rows.Scan(&s.ID, &s.EvaluationID, &s.ParticipantID, &s.StartedAt, &s.FinishedAt,
			&s.Status, &s.FinalScore, &s.Reussi, &s.ViolationCount, &s.QuestionOrder); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListByEvaluation retrieves all participant results for an evaluation,
// with pagination.
func (r *SessionRepository) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID, page, perPage int) ([]EvaluationResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluation_sessions WHERE evaluation_id = $1`, evaluationID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.email, p.department,
		        es.final_score, es.reussi, es.status, es.violation_count,
		        es.started_at, es.finished_at
		 FROM evaluation_sessions es
		 JOIN participants p ON es.participant_id = p.id
		 WHERE es.evaluation_id = $1
		 ORDER BY p.name ASC
		 LIMIT $2 OFFSET $3`, evaluationID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []EvaluationResult
	for rows.Next() {
		var res EvaluationResult
		if err := rows.Scan(
			&res.ParticipantID, &res.Name, &res.Email, &res.Department,
			&res.FinalScore, &res.Reussi, &res.Status, &res.ViolationCount,
			&res.StartedAt, &res.FinishedAt,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
