package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type ColumnRepository struct {
	db DBTX
}

func NewColumnRepository(db DBTX) *ColumnRepository {
	return &ColumnRepository{db: db}
}

func columnChoices(c *models.TableColumn) []string {
	if c.Choices == nil {
		return []string{}
	}
	return c.Choices
}

// Create inserts a column. A slug already used in the table yields ErrDuplicate.
func (r *ColumnRepository) Create(ctx context.Context, c *models.TableColumn) error {
	c.Prepare()

	query := `
		INSERT INTO table_columns (id, table_id, name, display_name, slug, field_type, choices)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING position
	`
	err := r.db.QueryRow(ctx, query,
		c.ID,
		c.TableID,
		c.Name,
		c.DisplayName,
		c.Slug,
		c.FieldType,
		columnChoices(c),
	).Scan(&c.Position)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ColumnRepository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.TableColumn, error) {
	query := `
		SELECT id, table_id, name, display_name, slug, field_type, choices, position
		FROM table_columns WHERE table_id = $1 ORDER BY position
	`
	rows, err := r.db.Query(ctx, query, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := []models.TableColumn{}
	for rows.Next() {
		var c models.TableColumn
		err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.DisplayName, &c.Slug, &c.FieldType, &c.Choices, &c.Position)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (r *ColumnRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TableColumn, error) {
	query := `
		SELECT id, table_id, name, display_name, slug, field_type, choices, position
		FROM table_columns WHERE id = $1
	`
	var c models.TableColumn
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.TableID, &c.Name, &c.DisplayName, &c.Slug, &c.FieldType, &c.Choices, &c.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Update renames or retypes a column. Entry data keeps its old keys.
func (r *ColumnRepository) Update(ctx context.Context, c *models.TableColumn) (bool, error) {
	c.Prepare()

	query := `
		UPDATE table_columns SET name = $3, display_name = $4, slug = $5, field_type = $6, choices = $7
		WHERE id = $1 AND table_id = $2
	`
	tag, err := r.db.Exec(ctx, query, c.ID, c.TableID, c.Name, c.DisplayName, c.Slug, c.FieldType, columnChoices(c))
	if isUniqueViolation(err) {
		return false, ErrDuplicate
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ColumnRepository) Delete(ctx context.Context, tableID, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM table_columns WHERE id = $1 AND table_id = $2`, id, tableID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
