package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type TableRepository struct {
	db DBTX
}

func NewTableRepository(db DBTX) *TableRepository {
	return &TableRepository{db: db}
}

const tableColumns = `id, database_id, name, slug, active, owner_id, created_at, last_edit_date, last_edit_user`

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	err := row.Scan(
		&t.ID,
		&t.DatabaseID,
		&t.Name,
		&t.Slug,
		&t.Active,
		&t.OwnerID,
		&t.CreatedAt,
		&t.LastEditDate,
		&t.LastEditUserID,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts the table and its columns in one transaction.
func (r *TableRepository) Create(ctx context.Context, t *models.Table, editor uuid.UUID) error {
	t.Prepare(editor)

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO tables (id, database_id, name, slug, active, owner_id, created_at, last_edit_date, last_edit_user)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.Exec(ctx, query,
			t.ID,
			t.DatabaseID,
			t.Name,
			t.Slug,
			t.Active,
			t.OwnerID,
			t.CreatedAt,
			t.LastEditDate,
			t.LastEditUserID,
		)
		if err != nil {
			return fmt.Errorf("insert table: %w", err)
		}

		cols := NewColumnRepository(tx)
		for i := range t.Columns {
			t.Columns[i].TableID = t.ID
			if err := cols.Create(ctx, &t.Columns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID returns the table without its columns, or nil when it does not exist.
func (r *TableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	t, err := scanTable(r.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListByDatabase returns the tables of a database without their columns.
func (r *TableRepository) ListByDatabase(ctx context.Context, databaseID uuid.UUID) ([]models.Table, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tableColumns+` FROM tables WHERE database_id = $1 ORDER BY name, id`, databaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []models.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

// Update saves name and active flag, re-deriving the slug and audit fields.
func (r *TableRepository) Update(ctx context.Context, t *models.Table, editor uuid.UUID) (bool, error) {
	t.Prepare(editor)

	query := `
		UPDATE tables SET name = $2, slug = $3, active = $4, last_edit_date = $5, last_edit_user = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, t.ID, t.Name, t.Slug, t.Active, t.LastEditDate, t.LastEditUserID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Touch records an edit without changing the table itself.
func (r *TableRepository) Touch(ctx context.Context, id, editor uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE tables SET last_edit_date = NOW(), last_edit_user = $2 WHERE id = $1`, id, editor)
	return err
}

// Delete removes the table and every filter that joins it. Columns, entries,
// field maps and charts go with the table through their foreign keys.
func (r *TableRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			DELETE FROM filters
			WHERE primary_table_id = $1
			   OR id IN (SELECT filter_id FROM filter_join_tables WHERE table_id = $1)
		`
		if _, err := tx.Exec(ctx, query, id); err != nil {
			return fmt.Errorf("delete filters: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM tables WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// CountEntries returns the entry count of each table id. Tables without
// entries are absent from the map.
func (r *TableRepository) CountEntries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	rows, err := r.db.Query(ctx, `SELECT table_id, count(*) FROM entries WHERE table_id = ANY($1) GROUP BY table_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
