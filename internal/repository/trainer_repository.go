package repository

import (
	"context"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrainerRepository handles trainer data access.
type TrainerRepository struct {
	pool *pgxpool.Pool
}

// NewTrainerRepository creates a new TrainerRepository.
func NewTrainerRepository(pool *pgxpool.Pool) *TrainerRepository {
	return &TrainerRepository{pool: pool}
}

// GetByID retrieves a trainer by ID.
func (r *TrainerRepository) GetByID(ctx context.Context, id int) (*model.Trainer, error) {
	t := &model.Trainer{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM trainers WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByEmail retrieves a trainer by their unique email.
func (r *TrainerRepository) GetByEmail(ctx context.Context, email string) (*model.Trainer, error) {
	t := &model.Trainer{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM trainers WHERE email = $1`, email,
	).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new trainer.
func (r *TrainerRepository) Create(ctx context.Context, t *model.Trainer) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO trainers (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.Name, t.Email, t.PasswordHash,
	).Scan(&t.ID, &t.CreatedAt)
}
