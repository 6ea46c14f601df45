package repository

import (
	"context"
	"fmt"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvaluationRepository handles evaluation data access.
type EvaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository creates a new EvaluationRepository.
func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

// GetByID retrieves an evaluation by its UUID.
func (r *EvaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Evaluation, error) {
	e := &model.Evaluation{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.formation_code, e.trainer_id, e.duration_minutes,
		        e.pass_mark, e.entry_token, e.status, e.created_at, e.updated_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.evaluation_id = e.id)
		 FROM evaluations e WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.FormationCode, &e.TrainerID, &e.DurationMinutes,
		&e.PassMark, &e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt,
		&e.QuestionCount)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByTrainerPaginated retrieves evaluations authored by a trainer with pagination.
func (r *EvaluationRepository) ListByTrainerPaginated(ctx context.Context, trainerID, page, perPage int) ([]model.Evaluation, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluations WHERE trainer_id = $1`, trainerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.formation_code, e.trainer_id, e.duration_minutes,
		        e.pass_mark, e.entry_token, e.status, e.created_at, e.updated_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.evaluation_id = e.id)
		 FROM evaluations e WHERE e.trainer_id = $1
		 ORDER BY e.created_at DESC
		 LIMIT $2 OFFSET $3`, trainerID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var evaluations []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(&e.ID, &e.Title, &e.FormationCode, &e.TrainerID, &e.DurationMinutes,
			&e.PassMark, &e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt,
			&e.QuestionCount); err != nil {
			return nil, 0, err
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, total, rows.Err()
}

// Create inserts a new evaluation.
func (r *EvaluationRepository) Create(ctx context.Context, e *model.Evaluation) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO evaluations (title, formation_code, trainer_id, duration_minutes, pass_mark, entry_token, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.FormationCode, e.TrainerID, e.DurationMinutes,
		e.PassMark, e.EntryToken, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies a draft evaluation's editable fields.
func (r *EvaluationRepository) Update(ctx context.Context, e *model.Evaluation) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE evaluations
		 SET title = $1, formation_code = $2, duration_minutes = $3,
		     pass_mark = $4, entry_token = $5, updated_at = NOW()
		 WHERE id = $6`,
		e.Title, e.FormationCode, e.DurationMinutes, e.PassMark, e.EntryToken, e.ID)
	return err
}

// UpdateStatus updates an evaluation's status.
func (r *EvaluationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.EvaluationStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE evaluations SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes a draft evaluation and its questions.
func (r *EvaluationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("evaluation %s not found", id)
	}
	return nil
}

// ListPublished returns all evaluations with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *EvaluationRepository) ListPublished(ctx context.Context) ([]model.Evaluation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.formation_code, e.trainer_id, e.duration_minutes,
		        e.pass_mark, e.entry_token, e.status, e.created_at, e.updated_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.evaluation_id = e.id)
		 FROM evaluations e WHERE e.status = $1
		 ORDER BY e.created_at DESC`, model.EvaluationStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evaluations []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(&e.ID, &e.Title, &e.FormationCode, &e.TrainerID, &e.DurationMinutes,
			&e.PassMark, &e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt,
			&e.QuestionCount); err != nil {
			return nil, err
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, rows.Err()
}
