package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tabula/internal/models"
)

type CsvImportRepository struct {
	db DBTX
}

func NewCsvImportRepository(db DBTX) *CsvImportRepository {
	return &CsvImportRepository{db: db}
}

const csvImportColumns = `id, table_id, file_name, delimiter, headers, errors, errors_count, imports_count, owner_id, created_at`

func scanCsvImport(row pgx.Row, extra ...any) (*models.CsvImport, error) {
	var c models.CsvImport
	dest := append([]any{
		&c.ID,
		&c.TableID,
		&c.FileName,
		&c.Delimiter,
		&c.Headers,
		&c.Errors,
		&c.ErrorsCount,
		&c.ImportsCount,
		&c.OwnerID,
		&c.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores the upload together with its field maps.
func (r *CsvImportRepository) Create(ctx context.Context, c *models.CsvImport, maps []models.CsvFieldMap, owner uuid.UUID) error {
	c.Prepare(owner)
	headers := c.Headers
	if headers == nil {
		headers = []string{}
	}

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO csv_imports (id, table_id, file_name, file_content, delimiter, headers, errors,
			                         errors_count, imports_count, owner_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := tx.Exec(ctx, query,
			c.ID,
			c.TableID,
			c.FileName,
			c.FileContent,
			c.Delimiter,
			headers,
			c.Errors,
			c.ErrorsCount,
			c.ImportsCount,
			c.OwnerID,
			c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert csv import: %w", err)
		}

		for i := range maps {
			maps[i].CsvImportID = &c.ID
			if err := insertFieldMap(ctx, tx, &maps[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID loads the import including the uploaded file.
func (r *CsvImportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CsvImport, error) {
	var content []byte
	c, err := scanCsvImport(
		r.db.QueryRow(ctx, `SELECT `+csvImportColumns+`, file_content FROM csv_imports WHERE id = $1`, id),
		&content,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.FileContent = content
	return c, nil
}

// ListByOwner returns imports without file content, newest first.
func (r *CsvImportRepository) ListByOwner(ctx context.Context, owner uuid.UUID) ([]models.CsvImport, error) {
	rows, err := r.db.Query(ctx, `SELECT `+csvImportColumns+` FROM csv_imports WHERE owner_id = $1 ORDER BY created_at DESC, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	imports := []models.CsvImport{}
	for rows.Next() {
		c, err := scanCsvImport(rows)
		if err != nil {
			return nil, err
		}
		imports = append(imports, *c)
	}
	return imports, rows.Err()
}

// SaveResult records the outcome of a commit.
func (r *CsvImportRepository) SaveResult(ctx context.Context, c *models.CsvImport) error {
	if c.Errors == nil {
		c.Errors = []models.CsvImportError{}
	}
	query := `
		UPDATE csv_imports SET table_id = $2, errors = $3, errors_count = $4, imports_count = $5
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.TableID, c.Errors, c.ErrorsCount, c.ImportsCount)
	return err
}

func insertFieldMap(ctx context.Context, db DBTX, m *models.CsvFieldMap) error {
	m.Prepare()

	query := `
		INSERT INTO csv_field_maps (id, csv_import_id, table_id, original_name, display_name, field_name, field_type, field_format)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.Exec(ctx, query,
		m.ID,
		m.CsvImportID,
		m.TableID,
		m.OriginalName,
		m.DisplayName,
		m.FieldName,
		m.FieldType,
		m.FieldFormat,
	)
	if err != nil {
		return fmt.Errorf("insert field map: %w", err)
	}
	return nil
}

const fieldMapColumns = `id, csv_import_id, table_id, original_name, display_name, field_name, field_type, field_format`

func (r *CsvImportRepository) fieldMaps(ctx context.Context, where string, arg any) ([]models.CsvFieldMap, error) {
	rows, err := r.db.Query(ctx, `SELECT `+fieldMapColumns+` FROM csv_field_maps WHERE `+where+` ORDER BY original_name, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maps := []models.CsvFieldMap{}
	for rows.Next() {
		var m models.CsvFieldMap
		err := rows.Scan(&m.ID, &m.CsvImportID, &m.TableID, &m.OriginalName, &m.DisplayName, &m.FieldName, &m.FieldType, &m.FieldFormat)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (r *CsvImportRepository) FieldMapsByImport(ctx context.Context, importID uuid.UUID) ([]models.CsvFieldMap, error) {
	return r.fieldMaps(ctx, "csv_import_id = $1", importID)
}

func (r *CsvImportRepository) FieldMapsByTable(ctx context.Context, tableID uuid.UUID) ([]models.CsvFieldMap, error) {
	return r.fieldMaps(ctx, "table_id = $1", tableID)
}

// SaveFieldMaps replaces the import's field maps with maps, attaching them
// to tableID.
func (r *CsvImportRepository) SaveFieldMaps(ctx context.Context, importID, tableID uuid.UUID, maps []models.CsvFieldMap) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM csv_field_maps WHERE csv_import_id = $1 OR table_id = $2`, importID, tableID); err != nil {
			return err
		}
		for i := range maps {
			maps[i].CsvImportID = &importID
			maps[i].TableID = &tableID
			if err := insertFieldMap(ctx, tx, &maps[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
