package repository

import (
	"context"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByEvaluation retrieves all questions for an evaluation, ordered by order_num.
func (r *QuestionRepository) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, evaluation_id, question_text, kind, options, correct_answer, points, order_num
		 FROM questions WHERE evaluation_id = $1
		 ORDER BY order_num`, evaluationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.EvaluationID, &q.Text, &q.Kind, &q.Options, &q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (evaluation_id, question_text, kind, options, correct_answer, points, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.EvaluationID, q.Text, q.Kind, q.Options, q.CorrectAnswer, q.Points, q.OrderNum,
	).Scan(&q.ID)
}

// ReplaceAll atomically swaps the full question set of an evaluation.
// Uses CopyFrom for the bulk insert.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, evaluationID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM questions WHERE evaluation_id = $1`, evaluationID); err != nil {
		return err
	}

	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, []any{
			evaluationID, q.Text, q.Kind, q.Options, q.CorrectAnswer, q.Points, q.OrderNum,
		})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"evaluation_id", "question_text", "kind", "options", "correct_answer", "points", "order_num"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
