package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/errs"
	"tabula/internal/models"
)

func TestTableCreateValidatesColumns(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.tables.Create(ctx, env.owner, CreateTableRequest{
		Name:       "orders",
		DatabaseID: env.database.ID,
		Columns:    []ColumnRequest{col("Amount", models.FieldFloat), col("amount", models.FieldInt)},
	})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	_, err = env.tables.Create(ctx, env.owner, CreateTableRequest{
		Name:       "orders",
		DatabaseID: env.database.ID,
		Columns:    []ColumnRequest{col("amount", "money")},
	})
	assert.ErrorContains(t, err, "field_type")

	_, err = env.tables.Create(ctx, env.owner, CreateTableRequest{Name: "orders", DatabaseID: uuid.New()})
	assert.ErrorContains(t, err, "unknown database")

	_, err = env.tables.Create(ctx, env.owner, CreateTableRequest{Name: " !! ", DatabaseID: env.database.ID})
	assert.True(t, errs.IsValidation(err))
}

func TestTableCreateDefaults(t *testing.T) {
	env := newEnv(t)
	tbl := env.table(t, "Monthly Orders",
		ColumnRequest{DisplayName: "Order Total"},
		ColumnRequest{Name: "colour", FieldType: models.FieldEnum, Choices: []string{"red", "blue", "red"}},
	)

	assert.Equal(t, "monthly-orders", tbl.Slug)
	assert.True(t, tbl.Active)
	assert.Equal(t, env.owner.ID, tbl.OwnerID)
	require.Len(t, tbl.Columns, 2)
	assert.Equal(t, "order_total", tbl.Columns[0].Name)
	assert.Equal(t, models.FieldText, tbl.Columns[0].FieldType)
	assert.Equal(t, []string{"red", "blue"}, tbl.Columns[1].Choices)
}

func TestTableColumnChangesInvalidateSchema(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	tbl := env.table(t, "orders", col("amount", models.FieldFloat))

	_, err := env.tables.Get(ctx, env.owner, tbl.ID)
	require.NoError(t, err)
	loaded, err := env.tables.Get(ctx, env.owner, tbl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.cache.hits)
	assert.Len(t, loaded.Columns, 1)

	added, err := env.tables.AddColumn(ctx, env.owner, tbl.ID, col("status", models.FieldText))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tbl.ID}, env.cache.invalidated)
	assert.Equal(t, []uuid.UUID{tbl.ID}, env.db.touched)

	_, err = env.tables.AddColumn(ctx, env.owner, tbl.ID, col("Status", models.FieldText))
	assert.True(t, errs.IsValidation(err))

	renamed, err := env.tables.UpdateColumn(ctx, env.owner, tbl.ID, added.ID, ColumnRequest{Name: "state"})
	require.NoError(t, err)
	assert.Equal(t, "state", renamed.Slug)
	assert.Equal(t, models.FieldText, renamed.FieldType)

	_, err = env.tables.UpdateColumn(ctx, env.owner, tbl.ID, added.ID, ColumnRequest{Name: "amount"})
	assert.True(t, errs.IsValidation(err))

	loaded, err = env.tables.Get(ctx, env.owner, tbl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "state"}, loaded.ColumnNames())

	require.NoError(t, env.tables.DeleteColumn(ctx, env.owner, tbl.ID, added.ID))
	err = env.tables.DeleteColumn(ctx, env.owner, tbl.ID, added.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Len(t, env.cache.invalidated, 3)
}

func TestTableUpdateAndDelete(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	tbl := env.table(t, "orders", col("amount", models.FieldFloat))
	inactive := false
	name := "Old Orders"

	_, err := env.tables.Update(ctx, env.stranger, tbl.ID, UpdateTableRequest{Name: &name})
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	updated, err := env.tables.Update(ctx, env.owner, tbl.ID, UpdateTableRequest{Name: &name, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "old-orders", updated.Slug)
	assert.False(t, updated.Active)

	require.NoError(t, env.tables.Delete(ctx, env.admin, tbl.ID))
	_, err = env.tables.Get(ctx, env.owner, tbl.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDatabaseDetailSplitsTables(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	orders := env.table(t, "orders", col("amount", models.FieldFloat))
	archive := env.table(t, "archive")
	inactive := false
	_, err := env.tables.Update(ctx, env.owner, archive.ID, UpdateTableRequest{Active: &inactive})
	require.NoError(t, err)
	env.insert(t, orders, map[string]any{"amount": 1.0}, map[string]any{"amount": 2.0})

	detail, err := env.databases.Get(ctx, env.owner, env.database.ID)
	require.NoError(t, err)
	require.Len(t, detail.ActiveTables, 1)
	require.Len(t, detail.ArchivedTables, 1)
	assert.Equal(t, int64(2), detail.ActiveTables[0].Entries)
	assert.Equal(t, []string{"view", "change", "delete"}, detail.ActiveTables[0].Permissions)

	hidden, err := env.databases.Get(ctx, env.stranger, env.database.ID)
	require.NoError(t, err)
	assert.Empty(t, hidden.ActiveTables)
	assert.Empty(t, hidden.ArchivedTables)
}

func TestDatabaseAdminOnlyWrites(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.databases.Update(ctx, env.owner, env.database.ID, DatabaseRequest{Name: "Other"})
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	assert.True(t, errors.Is(env.databases.Delete(ctx, env.owner, env.database.ID), errs.ErrForbidden))

	d, err := env.databases.Update(ctx, env.admin, env.database.ID, DatabaseRequest{Name: "Marketing"})
	require.NoError(t, err)
	assert.Equal(t, "Marketing", d.Name)

	require.NoError(t, env.databases.Delete(ctx, env.admin, env.database.ID))
	_, err = env.databases.Get(ctx, env.admin, env.database.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestTableListHidesForeignTables(t *testing.T) {
	env := newEnv(t)
	env.table(t, "orders")
	ctx := context.Background()

	tables, err := env.tables.List(ctx, env.owner, env.database.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "orders", tables[0].Name)

	tables, err = env.tables.List(ctx, env.stranger, env.database.ID)
	require.NoError(t, err)
	assert.Empty(t, tables)
}
