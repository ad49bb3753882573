package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tabula/internal/handlers"
	"tabula/internal/middlewares"
	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/repositories"
	"tabula/internal/routes"
	"tabula/internal/services"
	"tabula/internal/utils"
)

// store is a small in-memory backend. Entry lookups ignore predicates and
// ordering; only paging is honoured.
type store struct {
	databases map[uuid.UUID]models.Database
	tables    map[uuid.UUID]models.Table
	columns   map[uuid.UUID][]models.TableColumn
	entries   []models.Entry
	imports   map[uuid.UUID]models.CsvImport
	nextEntry int64
}

func newStore() *store {
	return &store{
		databases: map[uuid.UUID]models.Database{},
		tables:    map[uuid.UUID]models.Table{},
		columns:   map[uuid.UUID][]models.TableColumn{},
		imports:   map[uuid.UUID]models.CsvImport{},
	}
}

type databaseStore struct{ *store }

func (s databaseStore) Create(_ context.Context, d *models.Database) error {
	d.Prepare()
	s.databases[d.ID] = *d
	return nil
}

func (s databaseStore) GetByID(_ context.Context, id uuid.UUID) (*models.Database, error) {
	d, ok := s.databases[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s databaseStore) List(context.Context) ([]models.Database, error) {
	out := []models.Database{}
	for _, d := range s.databases {
		out = append(out, d)
	}
	return out, nil
}

func (s databaseStore) Update(_ context.Context, d *models.Database) (bool, error) {
	if _, ok := s.databases[d.ID]; !ok {
		return false, nil
	}
	d.Prepare()
	s.databases[d.ID] = *d
	return true, nil
}

func (s databaseStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := s.databases[id]
	delete(s.databases, id)
	return ok, nil
}

type tableStore struct{ *store }

func (s tableStore) Create(ctx context.Context, t *models.Table, editor uuid.UUID) error {
	t.Prepare(editor)
	for i := range t.Columns {
		t.Columns[i].TableID = t.ID
		if err := (columnStore{s.store}).Create(ctx, &t.Columns[i]); err != nil {
			return err
		}
	}
	stored := *t
	stored.Columns = nil
	s.tables[t.ID] = stored
	return nil
}

func (s tableStore) GetByID(_ context.Context, id uuid.UUID) (*models.Table, error) {
	t, ok := s.tables[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s tableStore) ListByDatabase(_ context.Context, databaseID uuid.UUID) ([]models.Table, error) {
	out := []models.Table{}
	for _, t := range s.tables {
		if t.DatabaseID == databaseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s tableStore) Update(_ context.Context, t *models.Table, editor uuid.UUID) (bool, error) {
	if _, ok := s.tables[t.ID]; !ok {
		return false, nil
	}
	t.Prepare(editor)
	stored := *t
	stored.Columns = nil
	s.tables[t.ID] = stored
	return true, nil
}

func (s tableStore) Touch(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s tableStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := s.tables[id]
	delete(s.tables, id)
	return ok, nil
}

func (s tableStore) CountEntries(context.Context, []uuid.UUID) (map[uuid.UUID]int64, error) {
	return map[uuid.UUID]int64{}, nil
}

type columnStore struct{ *store }

func (s columnStore) Create(_ context.Context, c *models.TableColumn) error {
	c.Prepare()
	for _, existing := range s.columns[c.TableID] {
		if existing.Slug == c.Slug {
			return repositories.ErrDuplicate
		}
	}
	c.Position = int64(len(s.columns[c.TableID]) + 1)
	s.columns[c.TableID] = append(s.columns[c.TableID], *c)
	return nil
}

func (s columnStore) ListByTable(_ context.Context, tableID uuid.UUID) ([]models.TableColumn, error) {
	return append([]models.TableColumn{}, s.columns[tableID]...), nil
}

func (s columnStore) Update(_ context.Context, c *models.TableColumn) (bool, error) {
	c.Prepare()
	cols := s.columns[c.TableID]
	for i := range cols {
		if cols[i].ID == c.ID {
			cols[i] = *c
			return true, nil
		}
	}
	return false, nil
}

func (s columnStore) Delete(_ context.Context, tableID, id uuid.UUID) (bool, error) {
	cols := s.columns[tableID]
	for i := range cols {
		if cols[i].ID == id {
			s.columns[tableID] = append(cols[:i:i], cols[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type entryStore struct{ *store }

func (s entryStore) of(tableID uuid.UUID) []models.Entry {
	out := []models.Entry{}
	for _, e := range s.entries {
		if e.TableID == tableID {
			out = append(out, e)
		}
	}
	return out
}

func (s entryStore) Find(_ context.Context, q query.Query) ([]models.Entry, error) {
	out := s.of(q.TableID)
	if q.Offset >= len(out) {
		return []models.Entry{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s entryStore) FindKeyed(context.Context, query.Query, string) ([]query.KeyedEntry, error) {
	return nil, nil
}

func (s entryStore) Count(_ context.Context, q query.Query) (int64, error) {
	return int64(len(s.of(q.TableID))), nil
}

func (s entryStore) GetByID(_ context.Context, tableID uuid.UUID, id int64) (*models.Entry, error) {
	for _, e := range s.entries {
		if e.TableID == tableID && e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (s entryStore) Create(_ context.Context, e *models.Entry) error {
	s.nextEntry++
	e.ID = s.nextEntry
	e.CreatedAt = time.Now()
	s.store.entries = append(s.store.entries, *e)
	return nil
}

func (s entryStore) Update(_ context.Context, e *models.Entry) (bool, error) {
	for i := range s.entries {
		if s.entries[i].TableID == e.TableID && s.entries[i].ID == e.ID {
			s.entries[i].Data = e.Data
			return true, nil
		}
	}
	return false, nil
}

func (s entryStore) Delete(_ context.Context, tableID uuid.UUID, id int64) (bool, error) {
	for i, e := range s.entries {
		if e.TableID == tableID && e.ID == id {
			s.store.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s entryStore) BulkCreate(ctx context.Context, tableID uuid.UUID, batch []map[string]any) (int64, error) {
	for _, data := range batch {
		if err := s.Create(ctx, &models.Entry{TableID: tableID, Data: data}); err != nil {
			return 0, err
		}
	}
	return int64(len(batch)), nil
}

func (s entryStore) Aggregate(context.Context, repositories.Aggregation) ([]repositories.AggregateRow, error) {
	return nil, nil
}

type importStore struct{ *store }

func (s importStore) Create(_ context.Context, c *models.CsvImport, _ []models.CsvFieldMap, owner uuid.UUID) error {
	c.Prepare(owner)
	s.imports[c.ID] = *c
	return nil
}

func (s importStore) GetByID(_ context.Context, id uuid.UUID) (*models.CsvImport, error) {
	c, ok := s.imports[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s importStore) ListByOwner(_ context.Context, owner uuid.UUID) ([]models.CsvImport, error) {
	out := []models.CsvImport{}
	for _, c := range s.imports {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s importStore) SaveResult(_ context.Context, c *models.CsvImport) error {
	s.imports[c.ID] = *c
	return nil
}

func (s importStore) FieldMapsByImport(context.Context, uuid.UUID) ([]models.CsvFieldMap, error) {
	return nil, nil
}

func (s importStore) FieldMapsByTable(context.Context, uuid.UUID) ([]models.CsvFieldMap, error) {
	return nil, nil
}

func (s importStore) SaveFieldMaps(context.Context, uuid.UUID, uuid.UUID, []models.CsvFieldMap) error {
	return nil
}

var secret = []byte("handler-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

// testAPI serves the full route table over the in-memory store. Filters and
// charts get no store; tests here do not reach them past validation.
type testAPI struct {
	t         *testing.T
	store     *store
	router    *gin.Engine
	exportDir string

	owner    uuid.UUID
	admin    uuid.UUID
	stranger uuid.UUID
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	s := newStore()
	logger := zap.NewNop()
	exportDir := t.TempDir()

	tables := tableStore{s}
	entries := entryStore{s}
	imports := importStore{s}

	catalog := services.NewCatalog(tables, columnStore{s}, repositories.NewSchemaCache(nil), services.OwnerAuthorizer{}, logger)
	tableService := services.NewTableService(databaseStore{s}, tables, columnStore{s}, catalog)
	filterService := services.NewFilterService(nil, entries, tables, tableService, catalog, logger)
	csvService := services.NewCsvService(imports, entries, tableService, catalog, logger)

	router := gin.New()
	router.Use(middlewares.Timeout(5 * time.Second))
	routes.RegisterRoutes(router, routes.Handlers{
		Databases:  handlers.NewDatabaseHandler(services.NewDatabaseService(databaseStore{s}, tables, catalog)),
		Tables:     handlers.NewTableHandler(tableService, csvService, filterService),
		Entries:    handlers.NewEntryHandler(services.NewEntryService(entries, catalog)),
		Filters:    handlers.NewFilterHandler(filterService),
		CsvImports: handlers.NewCsvImportHandler(csvService),
		Charts:     handlers.NewChartHandler(services.NewChartService(nil, entries, catalog)),
		Exports:    handlers.NewExportHandler(services.NewExportService(entries, imports, filterService, catalog, exportDir, logger), logger),
	}, middlewares.Authenticate(secret))

	return &testAPI{
		t:         t,
		store:     s,
		router:    router,
		exportDir: exportDir,
		owner:     uuid.New(),
		admin:     uuid.New(),
		stranger:  uuid.New(),
	}
}

func (api *testAPI) token(user uuid.UUID) string {
	role := ""
	if user == api.admin {
		role = services.RoleAdmin
	}
	token, err := utils.GenerateAccessToken(user, role, secret, time.Minute)
	require.NoError(api.t, err)
	return "Bearer " + token
}

// do sends req as user; a nil user sends no credentials.
func (api *testAPI) do(req *http.Request, user *uuid.UUID) *httptest.ResponseRecorder {
	if user != nil {
		req.Header.Set("Authorization", api.token(*user))
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}
