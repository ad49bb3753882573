package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type DatabaseRepository struct {
	db DBTX
}

func NewDatabaseRepository(db DBTX) *DatabaseRepository {
	return &DatabaseRepository{db: db}
}

func (r *DatabaseRepository) Create(ctx context.Context, d *models.Database) error {
	d.Prepare()

	query := `
		INSERT INTO databases (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, d.ID, d.Name, d.Slug, d.CreatedAt)
	return err
}

func (r *DatabaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Database, error) {
	query := `SELECT id, name, slug, created_at FROM databases WHERE id = $1`

	var d models.Database
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.Name, &d.Slug, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DatabaseRepository) List(ctx context.Context) ([]models.Database, error) {
	query := `SELECT id, name, slug, created_at FROM databases ORDER BY name, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	databases := []models.Database{}
	for rows.Next() {
		var d models.Database
		if err := rows.Scan(&d.ID, &d.Name, &d.Slug, &d.CreatedAt); err != nil {
			return nil, err
		}
		databases = append(databases, d)
	}
	return databases, rows.Err()
}

// Update saves a rename; the slug is re-derived.
func (r *DatabaseRepository) Update(ctx context.Context, d *models.Database) (bool, error) {
	d.Prepare()

	tag, err := r.db.Exec(ctx, `UPDATE databases SET name = $2, slug = $3 WHERE id = $1`, d.ID, d.Name, d.Slug)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DatabaseRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM databases WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
