package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/windrig/backend/internal/models"
)

// Repository handles operator persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns an operator by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	const q = `SELECT id, email, password_hash, role, created_at FROM operators WHERE id = $1`
	var op models.Operator
	err := r.pool.QueryRow(ctx, q, id).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Role, &op.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// GetByEmail returns an operator by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Operator, error) {
	const q = `SELECT id, email, password_hash, role, created_at FROM operators WHERE email = $1`
	var op models.Operator
	err := r.pool.QueryRow(ctx, q, email).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Role, &op.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Create inserts a new operator.
func (r *Repository) Create(ctx context.Context, email, passwordHash, role string) (*models.Operator, error) {
	const q = `INSERT INTO operators (email, password_hash, role)
		VALUES ($1, $2, $3) RETURNING id, created_at`
	op := models.Operator{Email: email, PasswordHash: passwordHash, Role: role}
	if err := r.pool.QueryRow(ctx, q, email, passwordHash, role).Scan(&op.ID, &op.CreatedAt); err != nil {
		return nil, err
	}
	return &op, nil
}

// Count returns the number of operators.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}
