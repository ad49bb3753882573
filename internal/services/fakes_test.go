package services

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/repositories"
)

// memDB backs the in-memory stores used by the service tests. Entry queries
// are evaluated with the same semantics the SQL compiler produces.
type memDB struct {
	databases map[uuid.UUID]models.Database
	tables    map[uuid.UUID]models.Table
	columns   map[uuid.UUID][]models.TableColumn
	entries   []models.Entry
	filters   map[uuid.UUID]models.Filter
	charts    map[uuid.UUID]models.Chart
	imports   map[uuid.UUID]models.CsvImport
	fieldMaps []models.CsvFieldMap

	nextEntry int64
	position  int64
	touched   []uuid.UUID

	aggregations []repositories.Aggregation
	aggRows      []repositories.AggregateRow
	failBulk     error
}

func newMemDB() *memDB {
	return &memDB{
		databases: map[uuid.UUID]models.Database{},
		tables:    map[uuid.UUID]models.Table{},
		columns:   map[uuid.UUID][]models.TableColumn{},
		filters:   map[uuid.UUID]models.Filter{},
		charts:    map[uuid.UUID]models.Chart{},
		imports:   map[uuid.UUID]models.CsvImport{},
	}
}

// normalize round trips data through JSON like the JSONB column does.
func normalize(data map[string]any) map[string]any {
	raw, _ := json.Marshal(data)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

type memDatabases struct{ *memDB }

func (m memDatabases) Create(_ context.Context, d *models.Database) error {
	d.Prepare()
	m.databases[d.ID] = *d
	return nil
}

func (m memDatabases) GetByID(_ context.Context, id uuid.UUID) (*models.Database, error) {
	d, ok := m.databases[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m memDatabases) List(context.Context) ([]models.Database, error) {
	out := []models.Database{}
	for _, d := range m.databases {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memDatabases) Update(_ context.Context, d *models.Database) (bool, error) {
	if _, ok := m.databases[d.ID]; !ok {
		return false, nil
	}
	d.Prepare()
	m.databases[d.ID] = *d
	return true, nil
}

func (m memDatabases) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.databases[id]
	delete(m.databases, id)
	return ok, nil
}

type memTables struct{ *memDB }

func (m memTables) Create(ctx context.Context, t *models.Table, editor uuid.UUID) error {
	t.Prepare(editor)
	cols := memColumns{m.memDB}
	for i := range t.Columns {
		t.Columns[i].TableID = t.ID
		if err := cols.Create(ctx, &t.Columns[i]); err != nil {
			delete(m.columns, t.ID)
			return err
		}
	}
	stored := *t
	stored.Columns = nil
	m.tables[t.ID] = stored
	return nil
}

func (m memTables) GetByID(_ context.Context, id uuid.UUID) (*models.Table, error) {
	t, ok := m.tables[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m memTables) ListByDatabase(_ context.Context, databaseID uuid.UUID) ([]models.Table, error) {
	out := []models.Table{}
	for _, t := range m.tables {
		if t.DatabaseID == databaseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memTables) Update(_ context.Context, t *models.Table, editor uuid.UUID) (bool, error) {
	if _, ok := m.tables[t.ID]; !ok {
		return false, nil
	}
	t.Prepare(editor)
	stored := *t
	stored.Columns = nil
	m.tables[t.ID] = stored
	return true, nil
}

func (m memTables) Touch(_ context.Context, id, _ uuid.UUID) error {
	m.memDB.touched = append(m.memDB.touched, id)
	return nil
}

func (m memTables) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.tables[id]
	delete(m.tables, id)
	delete(m.columns, id)
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.TableID != id {
			kept = append(kept, e)
		}
	}
	m.memDB.entries = kept
	return ok, nil
}

func (m memTables) CountEntries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := map[uuid.UUID]int64{}
	for _, e := range m.entries {
		for _, id := range ids {
			if e.TableID == id {
				counts[id]++
			}
		}
	}
	return counts, nil
}

type memColumns struct{ *memDB }

func (m memColumns) Create(_ context.Context, c *models.TableColumn) error {
	c.Prepare()
	for _, existing := range m.columns[c.TableID] {
		if existing.Slug == c.Slug {
			return repositories.ErrDuplicate
		}
	}
	m.memDB.position++
	c.Position = m.memDB.position
	m.columns[c.TableID] = append(m.columns[c.TableID], *c)
	return nil
}

func (m memColumns) ListByTable(_ context.Context, tableID uuid.UUID) ([]models.TableColumn, error) {
	return append([]models.TableColumn{}, m.columns[tableID]...), nil
}

func (m memColumns) Update(_ context.Context, c *models.TableColumn) (bool, error) {
	c.Prepare()
	cols := m.columns[c.TableID]
	for i := range cols {
		if cols[i].ID != c.ID && cols[i].Slug == c.Slug {
			return false, repositories.ErrDuplicate
		}
	}
	for i := range cols {
		if cols[i].ID == c.ID {
			cols[i] = *c
			return true, nil
		}
	}
	return false, nil
}

func (m memColumns) Delete(_ context.Context, tableID, id uuid.UUID) (bool, error) {
	cols := m.columns[tableID]
	for i := range cols {
		if cols[i].ID == id {
			m.columns[tableID] = append(cols[:i:i], cols[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memEntries struct{ *memDB }

func (m memEntries) Find(ctx context.Context, q query.Query) ([]models.Entry, error) {
	keyed, err := m.FindKeyed(ctx, q, "")
	if err != nil {
		return nil, err
	}
	out := make([]models.Entry, 0, len(keyed))
	for _, k := range keyed {
		out = append(out, k.Entry)
	}
	return out, nil
}

func (m memEntries) FindKeyed(_ context.Context, q query.Query, key string) ([]query.KeyedEntry, error) {
	matched := m.match(q.TableID, q.Predicates)
	if q.Order != nil {
		o := *q.Order
		value := func(e models.Entry) (any, bool) {
			if o.Link != nil {
				linked := m.linked(e, *o.Link)
				if linked == nil {
					return nil, false
				}
				e = *linked
			}
			v, ok := e.Data[o.Key]
			return v, ok && v != nil
		}
		sort.SliceStable(matched, func(i, j int) bool {
			vi, oki := value(matched[i])
			vj, okj := value(matched[j])
			if !oki || !okj {
				return oki && !okj
			}
			c, _ := compareValues(o.Type, vi, vj)
			if o.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]query.KeyedEntry, 0, len(matched))
	for _, e := range matched {
		k := query.KeyedEntry{Entry: e}
		if v, ok := e.Data[key]; ok && key != "" && v != nil {
			s := textOf(v)
			k.Key = &s
		}
		out = append(out, k)
	}
	return out, nil
}

func (m memEntries) Count(_ context.Context, q query.Query) (int64, error) {
	return int64(len(m.match(q.TableID, q.Predicates))), nil
}

func (m memEntries) GetByID(_ context.Context, tableID uuid.UUID, id int64) (*models.Entry, error) {
	for _, e := range m.entries {
		if e.TableID == tableID && e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (m memEntries) Create(_ context.Context, e *models.Entry) error {
	m.memDB.nextEntry++
	e.ID = m.memDB.nextEntry
	e.CreatedAt = time.Now()
	m.memDB.entries = append(m.memDB.entries, models.Entry{ID: e.ID, TableID: e.TableID, CreatedAt: e.CreatedAt, Data: normalize(e.Data)})
	return nil
}

func (m memEntries) Update(_ context.Context, e *models.Entry) (bool, error) {
	for i := range m.entries {
		if m.entries[i].TableID == e.TableID && m.entries[i].ID == e.ID {
			m.entries[i].Data = normalize(e.Data)
			e.CreatedAt = m.entries[i].CreatedAt
			return true, nil
		}
	}
	return false, nil
}

func (m memEntries) Delete(_ context.Context, tableID uuid.UUID, id int64) (bool, error) {
	for i, e := range m.entries {
		if e.TableID == tableID && e.ID == id {
			m.memDB.entries = append(m.entries[:i:i], m.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m memEntries) BulkCreate(ctx context.Context, tableID uuid.UUID, batch []map[string]any) (int64, error) {
	if m.failBulk != nil {
		return 0, m.failBulk
	}
	for _, data := range batch {
		if err := m.Create(ctx, &models.Entry{TableID: tableID, Data: data}); err != nil {
			return 0, err
		}
	}
	return int64(len(batch)), nil
}

func (m memEntries) Aggregate(_ context.Context, a repositories.Aggregation) ([]repositories.AggregateRow, error) {
	m.memDB.aggregations = append(m.memDB.aggregations, a)
	return m.aggRows, nil
}

func (m memEntries) match(tableID uuid.UUID, preds []query.Predicate) []models.Entry {
	var out []models.Entry
	for _, e := range m.entries {
		if e.TableID != tableID {
			continue
		}
		ok := true
		for _, p := range preds {
			if !m.matchPredicate(e, p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

// linked returns the earliest entry tied to e through link.
func (m memEntries) linked(e models.Entry, link query.Link) *models.Entry {
	local, ok := e.Data[link.LocalKey]
	if !ok || local == nil {
		return nil
	}
	for _, candidate := range m.match(link.TableID, link.Predicates) {
		if remote, ok := candidate.Data[link.RemoteKey]; ok && remote != nil && textOf(remote) == textOf(local) {
			return &candidate
		}
	}
	return nil
}

func (m memEntries) matchPredicate(e models.Entry, p query.Predicate) bool {
	if p.Op == query.OpExists {
		return m.linked(e, *p.Link) != nil
	}
	v, ok := e.Data[p.Key]
	if !ok || v == nil {
		return false
	}

	equal := func(want any) bool {
		c, ok := compareValues(p.Type, v, want)
		return ok && c == 0
	}
	switch p.Op {
	case query.OpEqual:
		return equal(p.Values[0])
	case query.OpIEqual:
		return strings.EqualFold(textOf(v), textOf(p.Values[0]))
	case query.OpIn:
		for _, want := range p.Values {
			if equal(want) {
				return true
			}
		}
		return false
	case query.OpIIn:
		for _, want := range p.Values {
			if strings.EqualFold(textOf(v), textOf(want)) {
				return true
			}
		}
		return false
	case query.OpContains:
		return strings.Contains(textOf(v), textOf(p.Values[0]))
	case query.OpIContains:
		return strings.Contains(strings.ToLower(textOf(v)), strings.ToLower(textOf(p.Values[0])))
	}

	c, ok := compareValues(p.Type, v, p.Values[0])
	if !ok {
		return false
	}
	switch p.Op {
	case query.OpGT:
		return c > 0
	case query.OpGTE:
		return c >= 0
	case query.OpLT:
		return c < 0
	case query.OpLTE:
		return c <= 0
	}
	return false
}

func textOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		t, _, err := query.ParseDate(val, "")
		return t, err == nil
	}
	return time.Time{}, false
}

// compareValues orders a and b the way the store does for ft. The second
// result is false when either side does not cast.
func compareValues(ft models.FieldType, a, b any) (int, bool) {
	switch ft {
	case models.FieldInt, models.FieldFloat:
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if !oka || !okb {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	case models.FieldDate:
		ta, oka := asTime(a)
		tb, okb := asTime(b)
		if !oka || !okb {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	return strings.Compare(textOf(a), textOf(b)), true
}

type memFilters struct{ *memDB }

func (m memFilters) Create(_ context.Context, f *models.Filter, editor uuid.UUID) error {
	f.Prepare(editor)
	m.filters[f.ID] = *f
	return nil
}

func (m memFilters) GetByID(_ context.Context, id uuid.UUID) (*models.Filter, error) {
	f, ok := m.filters[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m memFilters) List(context.Context) ([]models.Filter, error) {
	out := []models.Filter{}
	for _, f := range m.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memFilters) Update(_ context.Context, f *models.Filter, editor uuid.UUID) (bool, error) {
	if _, ok := m.filters[f.ID]; !ok {
		return false, nil
	}
	f.Prepare(editor)
	m.filters[f.ID] = *f
	return true, nil
}

func (m memFilters) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.filters[id]
	delete(m.filters, id)
	return ok, nil
}

type memCharts struct{ *memDB }

func (m memCharts) Create(_ context.Context, c *models.Chart, owner uuid.UUID) error {
	c.Prepare(owner)
	m.charts[c.ID] = *c
	return nil
}

func (m memCharts) GetByID(_ context.Context, id uuid.UUID) (*models.Chart, error) {
	c, ok := m.charts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m memCharts) List(_ context.Context, tableID *uuid.UUID) ([]models.Chart, error) {
	out := []models.Chart{}
	for _, c := range m.charts {
		if tableID == nil || c.TableID == *tableID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memCharts) Update(_ context.Context, c *models.Chart) (bool, error) {
	if _, ok := m.charts[c.ID]; !ok {
		return false, nil
	}
	c.Prepare(c.OwnerID)
	m.charts[c.ID] = *c
	return true, nil
}

func (m memCharts) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.charts[id]
	delete(m.charts, id)
	return ok, nil
}

type memImports struct{ *memDB }

func (m memImports) Create(_ context.Context, c *models.CsvImport, maps []models.CsvFieldMap, owner uuid.UUID) error {
	c.Prepare(owner)
	m.imports[c.ID] = *c
	for i := range maps {
		maps[i].CsvImportID = &c.ID
		maps[i].Prepare()
		m.memDB.fieldMaps = append(m.memDB.fieldMaps, maps[i])
	}
	return nil
}

func (m memImports) GetByID(_ context.Context, id uuid.UUID) (*models.CsvImport, error) {
	c, ok := m.imports[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m memImports) ListByOwner(_ context.Context, owner uuid.UUID) ([]models.CsvImport, error) {
	out := []models.CsvImport{}
	for _, c := range m.imports {
		if c.OwnerID == owner {
			c.FileContent = nil
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memImports) SaveResult(_ context.Context, c *models.CsvImport) error {
	stored := m.imports[c.ID]
	stored.TableID = c.TableID
	stored.Errors = c.Errors
	stored.ErrorsCount = c.ErrorsCount
	stored.ImportsCount = c.ImportsCount
	m.imports[c.ID] = stored
	return nil
}

func (m memImports) FieldMapsByImport(_ context.Context, importID uuid.UUID) ([]models.CsvFieldMap, error) {
	out := []models.CsvFieldMap{}
	for _, fm := range m.fieldMaps {
		if fm.CsvImportID != nil && *fm.CsvImportID == importID {
			out = append(out, fm)
		}
	}
	return out, nil
}

func (m memImports) FieldMapsByTable(_ context.Context, tableID uuid.UUID) ([]models.CsvFieldMap, error) {
	out := []models.CsvFieldMap{}
	for _, fm := range m.fieldMaps {
		if fm.TableID != nil && *fm.TableID == tableID {
			out = append(out, fm)
		}
	}
	return out, nil
}

func (m memImports) SaveFieldMaps(_ context.Context, importID, tableID uuid.UUID, maps []models.CsvFieldMap) error {
	kept := m.fieldMaps[:0]
	for _, fm := range m.fieldMaps {
		if (fm.CsvImportID == nil || *fm.CsvImportID != importID) && (fm.TableID == nil || *fm.TableID != tableID) {
			kept = append(kept, fm)
		}
	}
	m.memDB.fieldMaps = kept
	for i := range maps {
		maps[i].CsvImportID = &importID
		maps[i].TableID = &tableID
		maps[i].Prepare()
		m.memDB.fieldMaps = append(m.memDB.fieldMaps, maps[i])
	}
	return nil
}

// memCache records every call so tests can assert invalidation.
type memCache struct {
	columns     map[uuid.UUID][]models.TableColumn
	hits        int
	invalidated []uuid.UUID
}

func (c *memCache) Columns(_ context.Context, tableID uuid.UUID) ([]models.TableColumn, bool, error) {
	cols, ok := c.columns[tableID]
	if ok {
		c.hits++
	}
	return cols, ok, nil
}

func (c *memCache) StoreColumns(_ context.Context, tableID uuid.UUID, columns []models.TableColumn) error {
	c.columns[tableID] = columns
	return nil
}

func (c *memCache) Invalidate(_ context.Context, tableID uuid.UUID) error {
	delete(c.columns, tableID)
	c.invalidated = append(c.invalidated, tableID)
	return nil
}

// testEnv wires every service over one memDB.
type testEnv struct {
	db      *memDB
	cache   *memCache
	catalog *Catalog

	databases *DatabaseService
	tables    *TableService
	entries   *EntryService
	filters   *FilterService
	charts    *ChartService
	csv       *CsvService
	exports   *ExportService

	owner    User
	admin    User
	stranger User
	database *models.Database
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	cache := &memCache{columns: map[uuid.UUID][]models.TableColumn{}}
	logger := zap.NewNop()

	databases := memDatabases{db}
	tables := memTables{db}
	columns := memColumns{db}
	entries := memEntries{db}
	imports := memImports{db}

	catalog := NewCatalog(tables, columns, cache, OwnerAuthorizer{}, logger)
	tableService := NewTableService(databases, tables, columns, catalog)
	filterService := NewFilterService(memFilters{db}, entries, tables, tableService, catalog, logger)

	env := &testEnv{
		db:        db,
		cache:     cache,
		catalog:   catalog,
		databases: NewDatabaseService(databases, tables, catalog),
		tables:    tableService,
		entries:   NewEntryService(entries, catalog),
		filters:   filterService,
		charts:    NewChartService(memCharts{db}, entries, catalog),
		csv:       NewCsvService(imports, entries, tableService, catalog, logger),
		exports:   NewExportService(entries, imports, filterService, catalog, t.TempDir(), logger),
		owner:     User{ID: uuid.New()},
		admin:     User{ID: uuid.New(), Role: RoleAdmin},
		stranger:  User{ID: uuid.New()},
	}

	d, err := env.databases.Create(context.Background(), env.admin, DatabaseRequest{Name: "Sales"})
	require.NoError(t, err)
	env.database = d
	return env
}

func (env *testEnv) table(t *testing.T, name string, columns ...ColumnRequest) *models.Table {
	t.Helper()
	tbl, err := env.tables.Create(context.Background(), env.owner, CreateTableRequest{
		Name:       name,
		DatabaseID: env.database.ID,
		Columns:    columns,
	})
	require.NoError(t, err)
	return tbl
}

func (env *testEnv) insert(t *testing.T, tbl *models.Table, rows ...map[string]any) []models.Entry {
	t.Helper()
	out := make([]models.Entry, 0, len(rows))
	for _, data := range rows {
		e, err := env.entries.Create(context.Background(), env.owner, tbl.ID, data)
		require.NoError(t, err)
		out = append(out, *e)
	}
	return out
}

func col(name string, ft models.FieldType) ColumnRequest {
	return ColumnRequest{Name: name, FieldType: ft}
}
