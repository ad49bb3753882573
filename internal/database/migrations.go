package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrations := []string{
		createCastFunctions,
		createDatabasesTable,
		createTablesTable,
		createTableColumnsTable,
		createEntriesTable,
		createFiltersTable,
		createFilterJoinTablesTable,
		createChartsTable,
		createCsvImportsTable,
		createCsvFieldMapsTable,
	}

	for i, migration := range migrations {
		logger.Debug("Running migration", zap.Int("step", i+1), zap.Int("total", len(migrations)))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("All migrations completed successfully", zap.Int("count", len(migrations)))
	return nil
}

// Entry attributes are schema-on-read: a value that does not cast reads as NULL
// instead of failing the whole query.
const createCastFunctions = `
CREATE OR REPLACE FUNCTION tabula_try_float8(v text) RETURNS float8 AS $$
BEGIN
  RETURN v::float8;
EXCEPTION WHEN others THEN
  RETURN NULL;
END;
$$ LANGUAGE plpgsql IMMUTABLE;

CREATE OR REPLACE FUNCTION tabula_try_timestamptz(v text) RETURNS timestamptz AS $$
BEGIN
  RETURN v::timestamptz;
EXCEPTION WHEN others THEN
  RETURN NULL;
END;
$$ LANGUAGE plpgsql STABLE;
`

const createDatabasesTable = `
CREATE TABLE IF NOT EXISTS databases (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createTablesTable = `
CREATE TABLE IF NOT EXISTS tables (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  database_id UUID NOT NULL REFERENCES databases(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  owner_id UUID NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_edit_date TIMESTAMPTZ,
  last_edit_user UUID
);

CREATE INDEX IF NOT EXISTS idx_tables_database_id ON tables(database_id);
CREATE INDEX IF NOT EXISTS idx_tables_owner_id ON tables(owner_id);
`

const createTableColumnsTable = `
CREATE TABLE IF NOT EXISTS table_columns (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  table_id UUID NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  display_name TEXT NOT NULL,
  slug TEXT NOT NULL,
  field_type TEXT NOT NULL CHECK (field_type IN ('int', 'float', 'text', 'date', 'bool', 'object', 'enum')),
  choices TEXT[] NOT NULL DEFAULT '{}',
  position BIGSERIAL,
  CONSTRAINT table_columns_table_slug_key UNIQUE (table_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_table_columns_table_id ON table_columns(table_id);
`

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS entries (
  id BIGSERIAL PRIMARY KEY,
  table_id UUID NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  data JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_entries_table_id ON entries(table_id, id);
CREATE INDEX IF NOT EXISTS idx_entries_data ON entries USING GIN (data jsonb_path_ops);
`

const createFiltersTable = `
CREATE TABLE IF NOT EXISTS filters (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  primary_table_id UUID NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
  primary_join_column_id UUID NOT NULL REFERENCES table_columns(id) ON DELETE CASCADE,
  primary_field_ids UUID[] NOT NULL DEFAULT '{}',
  owner_id UUID NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_edit_date TIMESTAMPTZ,
  last_edit_user UUID
);

CREATE INDEX IF NOT EXISTS idx_filters_primary_table_id ON filters(primary_table_id);
`

const createFilterJoinTablesTable = `
CREATE TABLE IF NOT EXISTS filter_join_tables (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  filter_id UUID NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
  table_id UUID NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
  join_column_id UUID NOT NULL REFERENCES table_columns(id) ON DELETE CASCADE,
  field_ids UUID[] NOT NULL DEFAULT '{}',
  position INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_filter_join_tables_filter_id ON filter_join_tables(filter_id);
CREATE INDEX IF NOT EXISTS idx_filter_join_tables_table_id ON filter_join_tables(table_id);
`

const createChartsTable = `
CREATE TABLE IF NOT EXISTS charts (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  table_id UUID NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
  chart_type TEXT NOT NULL,
  timeline_field_id UUID REFERENCES table_columns(id) ON DELETE SET NULL,
  timeline_period TEXT NOT NULL DEFAULT '',
  timeline_include_nulls BOOLEAN NOT NULL DEFAULT FALSE,
  x_axis_field_id UUID REFERENCES table_columns(id) ON DELETE SET NULL,
  y_axis_field_id UUID REFERENCES table_columns(id) ON DELETE SET NULL,
  y_axis_function TEXT NOT NULL DEFAULT 'count',
  owner_id UUID NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_charts_table_id ON charts(table_id);
`

const createCsvImportsTable = `
CREATE TABLE IF NOT EXISTS csv_imports (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  table_id UUID REFERENCES tables(id) ON DELETE SET NULL,
  file_name TEXT NOT NULL,
  file_content BYTEA NOT NULL,
  delimiter TEXT NOT NULL DEFAULT ',',
  headers TEXT[] NOT NULL DEFAULT '{}',
  errors JSONB NOT NULL DEFAULT '[]'::jsonb,
  errors_count INT NOT NULL DEFAULT 0,
  imports_count INT NOT NULL DEFAULT 0,
  owner_id UUID NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_csv_imports_owner_id ON csv_imports(owner_id);
`

const createCsvFieldMapsTable = `
CREATE TABLE IF NOT EXISTS csv_field_maps (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  csv_import_id UUID REFERENCES csv_imports(id) ON DELETE CASCADE,
  table_id UUID REFERENCES tables(id) ON DELETE CASCADE,
  original_name TEXT NOT NULL,
  display_name TEXT NOT NULL,
  field_name TEXT NOT NULL,
  field_type TEXT NOT NULL DEFAULT 'text',
  field_format TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_csv_field_maps_csv_import_id ON csv_field_maps(csv_import_id);
CREATE INDEX IF NOT EXISTS idx_csv_field_maps_table_id ON csv_field_maps(table_id);
`
