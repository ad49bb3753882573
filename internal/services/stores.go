package services

import (
	"context"

	"github.com/google/uuid"

	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/repositories"
)

// The store interfaces are satisfied by the pgx repositories.

type DatabaseStore interface {
	Create(ctx context.Context, d *models.Database) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Database, error)
	List(ctx context.Context) ([]models.Database, error)
	Update(ctx context.Context, d *models.Database) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type TableStore interface {
	Create(ctx context.Context, t *models.Table, editor uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Table, error)
	ListByDatabase(ctx context.Context, databaseID uuid.UUID) ([]models.Table, error)
	Update(ctx context.Context, t *models.Table, editor uuid.UUID) (bool, error)
	Touch(ctx context.Context, id, editor uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CountEntries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error)
}

type ColumnStore interface {
	Create(ctx context.Context, c *models.TableColumn) error
	ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.TableColumn, error)
	Update(ctx context.Context, c *models.TableColumn) (bool, error)
	Delete(ctx context.Context, tableID, id uuid.UUID) (bool, error)
}

type EntryStore interface {
	Find(ctx context.Context, q query.Query) ([]models.Entry, error)
	FindKeyed(ctx context.Context, q query.Query, key string) ([]query.KeyedEntry, error)
	Count(ctx context.Context, q query.Query) (int64, error)
	GetByID(ctx context.Context, tableID uuid.UUID, id int64) (*models.Entry, error)
	Create(ctx context.Context, e *models.Entry) error
	Update(ctx context.Context, e *models.Entry) (bool, error)
	Delete(ctx context.Context, tableID uuid.UUID, id int64) (bool, error)
	BulkCreate(ctx context.Context, tableID uuid.UUID, batch []map[string]any) (int64, error)
	Aggregate(ctx context.Context, a repositories.Aggregation) ([]repositories.AggregateRow, error)
}

type FilterStore interface {
	Create(ctx context.Context, f *models.Filter, editor uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Filter, error)
	List(ctx context.Context) ([]models.Filter, error)
	Update(ctx context.Context, f *models.Filter, editor uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type ChartStore interface {
	Create(ctx context.Context, c *models.Chart, owner uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chart, error)
	List(ctx context.Context, tableID *uuid.UUID) ([]models.Chart, error)
	Update(ctx context.Context, c *models.Chart) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type CsvImportStore interface {
	Create(ctx context.Context, c *models.CsvImport, maps []models.CsvFieldMap, owner uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CsvImport, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]models.CsvImport, error)
	SaveResult(ctx context.Context, c *models.CsvImport) error
	FieldMapsByImport(ctx context.Context, importID uuid.UUID) ([]models.CsvFieldMap, error)
	FieldMapsByTable(ctx context.Context, tableID uuid.UUID) ([]models.CsvFieldMap, error)
	SaveFieldMaps(ctx context.Context, importID, tableID uuid.UUID, maps []models.CsvFieldMap) error
}

// ColumnCache caches column lists per table. Misses are not errors.
type ColumnCache interface {
	Columns(ctx context.Context, tableID uuid.UUID) ([]models.TableColumn, bool, error)
	StoreColumns(ctx context.Context, tableID uuid.UUID, columns []models.TableColumn) error
	Invalidate(ctx context.Context, tableID uuid.UUID) error
}

var (
	_ DatabaseStore  = (*repositories.DatabaseRepository)(nil)
	_ TableStore     = (*repositories.TableRepository)(nil)
	_ ColumnStore    = (*repositories.ColumnRepository)(nil)
	_ EntryStore     = (*repositories.EntryRepository)(nil)
	_ FilterStore    = (*repositories.FilterRepository)(nil)
	_ ChartStore     = (*repositories.ChartRepository)(nil)
	_ CsvImportStore = (*repositories.CsvImportRepository)(nil)
	_ ColumnCache    = (*repositories.SchemaCache)(nil)
)
