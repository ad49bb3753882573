package services

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/errs"
	"tabula/internal/models"
)

func preview(t *testing.T, env *testEnv, content, delimiter string) *CsvPreview {
	t.Helper()
	p, err := env.csv.Preview(context.Background(), env.owner, CsvUpload{
		FileName:  "orders.csv",
		Content:   []byte(content),
		Delimiter: delimiter,
	})
	require.NoError(t, err)
	return p
}

func TestCsvPreviewProposesTextFields(t *testing.T) {
	env := newEnv(t)
	p := preview(t, env, "\xEF\xBB\xBF Customer Name ;Amount\nAnn;5\n", ";")

	assert.Equal(t, []FieldMapRequest{
		{OriginalName: "Customer Name", DisplayName: "Customer Name", FieldType: models.FieldText},
		{OriginalName: "Amount", DisplayName: "Amount", FieldType: models.FieldText},
	}, p.Fields)

	imp := env.db.imports[p.ImportID]
	assert.Equal(t, ";", imp.Delimiter)
	assert.Equal(t, []string{"Customer Name", "Amount"}, imp.Headers)
	assert.Nil(t, imp.TableID)
}

func TestCsvPreviewRejectsBadFiles(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	for name, upload := range map[string]CsvUpload{
		"empty":             {Content: []byte("")},
		"duplicate headers": {Content: []byte("a,b,a\n1,2,3\n")},
		"blank header":      {Content: []byte("a,,c\n")},
		"bad delimiter":     {Content: []byte("a,b\n"), Delimiter: "||"},
		"quote delimiter":   {Content: []byte("a,b\n"), Delimiter: `"`},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.csv.Preview(ctx, env.owner, upload)
			assert.True(t, errs.IsValidation(err))
		})
	}
}

func TestParseDelimiter(t *testing.T) {
	for raw, want := range map[string]rune{"": ',', ";": ';', `\t`: '\t', "tab": '\t', "|": '|'} {
		got, err := parseDelimiter(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestCsvCreateTableImportsRows(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	p := preview(t, env, "name,amount\nAnn,5\nBob,oops\n,7\n", "")

	res, err := env.csv.CreateTable(ctx, env.owner, CreateTableRequest{
		Name:       "Orders",
		DatabaseID: env.database.ID,
		ImportID:   &p.ImportID,
		Fields: []FieldMapRequest{
			{OriginalName: "name", DisplayName: "Customer Name", FieldType: models.FieldText},
			{OriginalName: "amount", DisplayName: "Amount", FieldType: models.FieldFloat},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_name", "amount"}, res.Table.ColumnNames())
	assert.Equal(t, 2, res.Import.ImportsCount)
	assert.Equal(t, 1, res.Import.ErrorsCount)
	require.Len(t, res.Import.Errors, 1)
	assert.Equal(t, map[string]string{"name": "Bob", "amount": "oops"}, res.Import.Errors[0].Row)
	assert.Contains(t, res.Import.Errors[0].Error, "amount: ")

	page, err := env.entries.List(ctx, env.owner, res.Table.ID, url.Values{})
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	assert.Equal(t, map[string]any{"customer_name": "Ann", "amount": 5.0}, page.Results[0].Data)
	assert.Equal(t, map[string]any{"customer_name": "Bob"}, page.Results[1].Data)
	assert.Equal(t, map[string]any{"amount": 7.0}, page.Results[2].Data)

	stored := env.db.imports[p.ImportID]
	assert.Equal(t, res.Table.ID, *stored.TableID)
	assert.Equal(t, 1, stored.ErrorsCount)

	_, err = env.csv.CreateTable(ctx, env.owner, CreateTableRequest{Name: "Again", DatabaseID: env.database.ID, ImportID: &p.ImportID})
	assert.ErrorContains(t, err, "already committed")
}

func TestCsvCreateTableFallsBackToStoredMaps(t *testing.T) {
	env := newEnv(t)
	p := preview(t, env, "Customer Id,Placed At\n1,2024-03-01\n", "")

	res, err := env.csv.CreateTable(context.Background(), env.owner, CreateTableRequest{
		Name:       "Customers",
		DatabaseID: env.database.ID,
		ImportID:   &p.ImportID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "placed_at"}, res.Table.ColumnNames())
	assert.Equal(t, "Customer Id", res.Table.Columns[0].DisplayName)
	assert.Equal(t, 1, res.Import.ImportsCount)
}

func TestCsvCreateTableValidatesMapping(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	p := preview(t, env, "name,amount\nAnn,5\n", "")

	_, err := env.csv.CreateTable(ctx, env.owner, CreateTableRequest{
		Name: "Orders", DatabaseID: env.database.ID, ImportID: &p.ImportID,
		Fields: []FieldMapRequest{{OriginalName: "total"}},
	})
	assert.ErrorContains(t, err, "not a header")

	_, err = env.csv.CreateTable(ctx, env.owner, CreateTableRequest{
		Name: "Orders", DatabaseID: env.database.ID, ImportID: &p.ImportID,
		Fields: []FieldMapRequest{{OriginalName: "name"}, {OriginalName: "name"}},
	})
	assert.ErrorContains(t, err, "mapped twice")

	_, err = env.csv.CreateTable(ctx, env.stranger, CreateTableRequest{Name: "Orders", DatabaseID: env.database.ID, ImportID: &p.ImportID})
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	_, err = env.csv.CreateTable(ctx, env.owner, CreateTableRequest{Name: "Orders", DatabaseID: env.database.ID})
	assert.True(t, errs.IsValidation(err))
}

func TestCsvImportFormatsAndRaggedRows(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	p := preview(t, env, "placed\tqty\n01.02.2024\t3\n02.02.2024\t4\textra\n", "tab")

	res, err := env.csv.CreateTable(ctx, env.owner, CreateTableRequest{
		Name: "Shipments", DatabaseID: env.database.ID, ImportID: &p.ImportID,
		Fields: []FieldMapRequest{
			{OriginalName: "placed", FieldType: models.FieldDate, FieldFormat: "%d.%m.%Y"},
			{OriginalName: "qty", FieldType: models.FieldInt},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Import.ImportsCount)
	require.Len(t, res.Import.Errors, 1)
	assert.Equal(t, map[string]string{"placed": "02.02.2024", "qty": "4", "column_3": "extra"}, res.Import.Errors[0].Row)

	page, err := env.entries.List(ctx, env.owner, res.Table.ID, url.Values{})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, map[string]any{"placed": "2024-02-01", "qty": 3.0}, page.Results[0].Data)
}

func TestCsvManualImportMatchesHeaders(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	p := preview(t, env, "Customer,Total\nAnn,5\n", "")
	res, err := env.csv.CreateTable(ctx, env.owner, CreateTableRequest{
		Name: "Orders", DatabaseID: env.database.ID, ImportID: &p.ImportID,
		Fields: []FieldMapRequest{
			{OriginalName: "Customer", FieldName: "name"},
			{OriginalName: "Total", DisplayName: "Order Total", FieldType: models.FieldFloat},
		},
	})
	require.NoError(t, err)

	// "Customer" follows the saved map, "order total" the display name.
	imp, err := env.csv.ManualImport(ctx, env.owner, res.Table.ID, CsvUpload{
		FileName: "more.csv",
		Content:  []byte("order total,Customer,ignored\n8,Bob,x\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, imp.ImportsCount)
	assert.Equal(t, res.Table.ID, *imp.TableID)

	page, err := env.entries.List(ctx, env.owner, res.Table.ID, url.Values{"name": {"bob"}})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, map[string]any{"name": "Bob", "order_total": 8.0}, page.Results[0].Data)

	_, err = env.csv.ManualImport(ctx, env.owner, res.Table.ID, CsvUpload{Content: []byte("nothing,here\n1,2\n")})
	assert.ErrorContains(t, err, "no header")

	_, err = env.csv.ManualImport(ctx, env.stranger, res.Table.ID, CsvUpload{Content: []byte("Customer\nCy\n")})
	assert.True(t, errors.Is(err, errs.ErrForbidden))
}

func TestCsvImportListAndGet(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	p := preview(t, env, "a\n1\n", "")

	imports, err := env.csv.List(ctx, env.owner)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Nil(t, imports[0].FileContent)

	imports, err = env.csv.List(ctx, env.stranger)
	require.NoError(t, err)
	assert.Empty(t, imports)

	_, err = env.csv.Get(ctx, env.stranger, p.ImportID)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	imp, err := env.csv.Get(ctx, env.admin, p.ImportID)
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", imp.FileName)
}
