package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type ChartRepository struct {
	db DBTX
}

func NewChartRepository(db DBTX) *ChartRepository {
	return &ChartRepository{db: db}
}

const chartColumns = `id, name, table_id, chart_type, timeline_field_id, timeline_period, timeline_include_nulls,
	x_axis_field_id, y_axis_field_id, y_axis_function, owner_id, created_at`

func scanChart(row pgx.Row) (*models.Chart, error) {
	var c models.Chart
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.TableID,
		&c.ChartType,
		&c.TimelineFieldID,
		&c.TimelinePeriod,
		&c.TimelineIncludeNulls,
		&c.XAxisFieldID,
		&c.YAxisFieldID,
		&c.YAxisFunction,
		&c.OwnerID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChartRepository) Create(ctx context.Context, c *models.Chart, owner uuid.UUID) error {
	c.Prepare(owner)

	query := `
		INSERT INTO charts (id, name, table_id, chart_type, timeline_field_id, timeline_period, timeline_include_nulls,
		                    x_axis_field_id, y_axis_field_id, y_axis_function, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.TableID,
		c.ChartType,
		c.TimelineFieldID,
		c.TimelinePeriod,
		c.TimelineIncludeNulls,
		c.XAxisFieldID,
		c.YAxisFieldID,
		c.YAxisFunction,
		c.OwnerID,
		c.CreatedAt,
	)
	return err
}

func (r *ChartRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chart, error) {
	c, err := scanChart(r.db.QueryRow(ctx, `SELECT `+chartColumns+` FROM charts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// List returns charts, narrowed to one table when tableID is not nil.
func (r *ChartRepository) List(ctx context.Context, tableID *uuid.UUID) ([]models.Chart, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chartColumns+` FROM charts WHERE ($1::uuid IS NULL OR table_id = $1) ORDER BY created_at, id`,
		tableID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	charts := []models.Chart{}
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		charts = append(charts, *c)
	}
	return charts, rows.Err()
}

func (r *ChartRepository) Update(ctx context.Context, c *models.Chart) (bool, error) {
	c.Prepare(c.OwnerID)

	query := `
		UPDATE charts SET name = $2, table_id = $3, chart_type = $4, timeline_field_id = $5, timeline_period = $6,
		       timeline_include_nulls = $7, x_axis_field_id = $8, y_axis_field_id = $9, y_axis_function = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.TableID,
		c.ChartType,
		c.TimelineFieldID,
		c.TimelinePeriod,
		c.TimelineIncludeNulls,
		c.XAxisFieldID,
		c.YAxisFieldID,
		c.YAxisFunction,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ChartRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM charts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
