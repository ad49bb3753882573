package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
	"tabula/internal/query"
)

type EntryRepository struct {
	db DBTX
}

func NewEntryRepository(db DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

func scanEntry(row pgx.Row, extra ...any) (models.Entry, error) {
	var e models.Entry
	dest := append([]any{&e.ID, &e.TableID, &e.CreatedAt, &e.Data}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return e, nil
}

// Find returns the entries matching q in its requested order.
func (r *EntryRepository) Find(ctx context.Context, q query.Query) ([]models.Entry, error) {
	sql, args, err := selectEntries(q, "")
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindKeyed is Find that also returns the text form of key for every entry.
func (r *EntryRepository) FindKeyed(ctx context.Context, q query.Query, key string) ([]query.KeyedEntry, error) {
	sql, args, err := selectEntries(q, key)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []query.KeyedEntry{}
	for rows.Next() {
		var k *string
		e, err := scanEntry(rows, &k)
		if err != nil {
			return nil, err
		}
		entries = append(entries, query.KeyedEntry{Entry: e, Key: k})
	}
	return entries, rows.Err()
}

// Count ignores the limit, offset and order of q.
func (r *EntryRepository) Count(ctx context.Context, q query.Query) (int64, error) {
	sql, args, err := countEntries(q)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (r *EntryRepository) GetByID(ctx context.Context, tableID uuid.UUID, id int64) (*models.Entry, error) {
	query := `SELECT id, table_id, created_at, data FROM entries WHERE id = $1 AND table_id = $2`
	e, err := scanEntry(r.db.QueryRow(ctx, query, id, tableID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EntryRepository) Create(ctx context.Context, e *models.Entry) error {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	query := `INSERT INTO entries (table_id, data) VALUES ($1, $2) RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, e.TableID, e.Data).Scan(&e.ID, &e.CreatedAt)
}

// Update replaces the attribute map of an entry.
func (r *EntryRepository) Update(ctx context.Context, e *models.Entry) (bool, error) {
	query := `UPDATE entries SET data = $3 WHERE id = $1 AND table_id = $2 RETURNING created_at`
	err := r.db.QueryRow(ctx, query, e.ID, e.TableID, e.Data).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *EntryRepository) Delete(ctx context.Context, tableID uuid.UUID, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM entries WHERE id = $1 AND table_id = $2`, id, tableID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// BulkCreate writes one batch with COPY inside a transaction, so either every
// row of the batch becomes visible or none does.
func (r *EntryRepository) BulkCreate(ctx context.Context, tableID uuid.UUID, batch []map[string]any) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	var n int64
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		n, err = tx.CopyFrom(ctx,
			pgx.Identifier{"entries"},
			[]string{"table_id", "data"},
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				data := batch[i]
				if data == nil {
					data = map[string]any{}
				}
				return []any{tableID, data}, nil
			}),
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("bulk insert entries: %w", err)
	}
	return n, nil
}

// Aggregate runs a grouped aggregation. Rows come ordered by bucket then x.
func (r *EntryRepository) Aggregate(ctx context.Context, a Aggregation) ([]AggregateRow, error) {
	sql, args, err := aggregateEntries(a)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AggregateRow{}
	for rows.Next() {
		var row AggregateRow
		if err := rows.Scan(&row.Bucket, &row.X, &row.Value); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
