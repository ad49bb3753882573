package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type FilterRepository struct {
	db DBTX
}

func NewFilterRepository(db DBTX) *FilterRepository {
	return &FilterRepository{db: db}
}

const filterColumns = `id, name, slug, primary_table_id, primary_join_column_id, primary_field_ids, owner_id, created_at, last_edit_date, last_edit_user`

func scanFilter(row pgx.Row) (*models.Filter, error) {
	var f models.Filter
	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Slug,
		&f.PrimaryTableID,
		&f.PrimaryJoinColumnID,
		&f.PrimaryFieldIDs,
		&f.OwnerID,
		&f.CreatedAt,
		&f.LastEditDate,
		&f.LastEditUserID,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func uuids(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func (r *FilterRepository) Create(ctx context.Context, f *models.Filter, editor uuid.UUID) error {
	f.Prepare(editor)

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO filters (id, name, slug, primary_table_id, primary_join_column_id, primary_field_ids,
			                     owner_id, created_at, last_edit_date, last_edit_user)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.Exec(ctx, query,
			f.ID,
			f.Name,
			f.Slug,
			f.PrimaryTableID,
			f.PrimaryJoinColumnID,
			uuids(f.PrimaryFieldIDs),
			f.OwnerID,
			f.CreatedAt,
			f.LastEditDate,
			f.LastEditUserID,
		)
		if err != nil {
			return fmt.Errorf("insert filter: %w", err)
		}
		return insertJoins(ctx, tx, f.Joins)
	})
}

func insertJoins(ctx context.Context, tx pgx.Tx, joins []models.FilterJoinTable) error {
	query := `
		INSERT INTO filter_join_tables (id, filter_id, table_id, join_column_id, field_ids, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, j := range joins {
		if _, err := tx.Exec(ctx, query, j.ID, j.FilterID, j.TableID, j.JoinColumnID, uuids(j.FieldIDs), j.Position); err != nil {
			return fmt.Errorf("insert join table: %w", err)
		}
	}
	return nil
}

func (r *FilterRepository) joins(ctx context.Context, filterID uuid.UUID) ([]models.FilterJoinTable, error) {
	query := `
		SELECT id, filter_id, table_id, join_column_id, field_ids, position
		FROM filter_join_tables WHERE filter_id = $1 ORDER BY position, id
	`
	rows, err := r.db.Query(ctx, query, filterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	joins := []models.FilterJoinTable{}
	for rows.Next() {
		var j models.FilterJoinTable
		if err := rows.Scan(&j.ID, &j.FilterID, &j.TableID, &j.JoinColumnID, &j.FieldIDs, &j.Position); err != nil {
			return nil, err
		}
		joins = append(joins, j)
	}
	return joins, rows.Err()
}

func (r *FilterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Filter, error) {
	f, err := scanFilter(r.db.QueryRow(ctx, `SELECT `+filterColumns+` FROM filters WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.Joins, err = r.joins(ctx, id)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FilterRepository) List(ctx context.Context) ([]models.Filter, error) {
	rows, err := r.db.Query(ctx, `SELECT `+filterColumns+` FROM filters ORDER BY name, id`)
	if err != nil {
		return nil, err
	}

	filters := []models.Filter{}
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		filters = append(filters, *f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range filters {
		if filters[i].Joins, err = r.joins(ctx, filters[i].ID); err != nil {
			return nil, err
		}
	}
	return filters, nil
}

// Update replaces the filter definition and its join tables.
func (r *FilterRepository) Update(ctx context.Context, f *models.Filter, editor uuid.UUID) (bool, error) {
	f.Prepare(editor)

	var found bool
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE filters SET name = $2, slug = $3, primary_table_id = $4, primary_join_column_id = $5,
			       primary_field_ids = $6, last_edit_date = $7, last_edit_user = $8
			WHERE id = $1
		`
		tag, err := tx.Exec(ctx, query,
			f.ID,
			f.Name,
			f.Slug,
			f.PrimaryTableID,
			f.PrimaryJoinColumnID,
			uuids(f.PrimaryFieldIDs),
			f.LastEditDate,
			f.LastEditUserID,
		)
		if err != nil {
			return err
		}
		if found = tag.RowsAffected() > 0; !found {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM filter_join_tables WHERE filter_id = $1`, f.ID); err != nil {
			return err
		}
		return insertJoins(ctx, tx, f.Joins)
	})
	return found, err
}

func (r *FilterRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM filters WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
