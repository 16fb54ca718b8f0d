package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/windrig/backend/internal/models"
)

const clipColumns = `id, display_name, folder, COALESCE(local_path,''), duration_ms, size_bytes,
	COALESCE(mime_type,''), status, COALESCE(s3_key,''), COALESCE(s3_url,''), added_at, updated_at`

// Repository is the Postgres-backed media index for clips.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clips repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a freshly finalized clip.
func (r *Repository) Insert(ctx context.Context, clip *models.Clip) error {
	const q = `INSERT INTO clips (id, display_name, folder, local_path, duration_ms, size_bytes, mime_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING added_at, updated_at`
	if clip.ID == uuid.Nil {
		clip.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, q,
		clip.ID, clip.DisplayName, clip.Folder, clip.LocalPath,
		clip.DurationMS, clip.SizeBytes, clip.MimeType, clip.Status,
	).Scan(&clip.AddedAt, &clip.UpdatedAt)
}

// GetByID returns one clip.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	q := `SELECT ` + clipColumns + ` FROM clips WHERE id = $1`
	var c models.Clip
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.DisplayName, &c.Folder, &c.LocalPath, &c.DurationMS, &c.SizeBytes,
		&c.MimeType, &c.Status, &c.S3Key, &c.S3URL, &c.AddedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListByFolder returns clips whose folder matches the given prefix. An empty
// result is a valid result, not an error. Rows come back in store order; the
// lister owns the final sort.
func (r *Repository) ListByFolder(ctx context.Context, folder string) ([]models.Clip, error) {
	q := `SELECT ` + clipColumns + ` FROM clips WHERE folder LIKE $1 || '%'`
	rows, err := r.pool.Query(ctx, q, folder)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()
	var list []models.Clip
	for rows.Next() {
		var c models.Clip
		if err := rows.Scan(
			&c.ID, &c.DisplayName, &c.Folder, &c.LocalPath, &c.DurationMS, &c.SizeBytes,
			&c.MimeType, &c.Status, &c.S3Key, &c.S3URL, &c.AddedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// UpdateStatus sets a clip's archive status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE clips SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// MarkArchived records the S3 location after a successful archive upload.
func (r *Repository) MarkArchived(ctx context.Context, id uuid.UUID, s3URL, s3Key string) error {
	const q = `UPDATE clips SET s3_url = $1, s3_key = $2, status = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, models.ClipStatusArchived, id)
	return err
}
