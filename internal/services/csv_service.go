package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/utils"
)

type CsvService struct {
	imports CsvImportStore
	entries EntryStore
	schema  *TableService
	catalog *Catalog
	logger  *zap.Logger
}

func NewCsvService(imports CsvImportStore, entries EntryStore, schema *TableService, catalog *Catalog, logger *zap.Logger) *CsvService {
	return &CsvService{
		imports: imports,
		entries: entries,
		schema:  schema,
		catalog: catalog,
		logger:  logger,
	}
}

// FieldMapRequest maps one CSV header onto a table column.
type FieldMapRequest struct {
	OriginalName string           `json:"original_name"`
	DisplayName  string           `json:"display_name"`
	FieldName    string           `json:"field_name,omitempty"`
	FieldType    models.FieldType `json:"field_type"`
	FieldFormat  string           `json:"field_format"`
}

type CsvPreview struct {
	ImportID uuid.UUID         `json:"import_id"`
	Fields   []FieldMapRequest `json:"fields"`
}

// CsvUpload is an uploaded file together with its delimiter.
type CsvUpload struct {
	FileName  string
	Content   []byte
	Delimiter string
}

type ImportResult struct {
	Table  *models.Table     `json:"table"`
	Import *models.CsvImport `json:"import"`
}

// readHeaders returns the trimmed header row of an upload.
func readHeaders(content []byte, delimiter rune) ([]string, error) {
	header, err := newCSVReader(content, delimiter).Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.Validation("file", "the file is empty")
	}
	if err != nil {
		return nil, errs.Validation("file", "invalid csv: %v", err)
	}

	seen := make(map[string]bool, len(header))
	headers := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, errs.Validation("file", "column %d has no header", i+1)
		}
		if seen[h] {
			return nil, errs.Validation("file", "header %q appears twice", h)
		}
		seen[h] = true
		headers = append(headers, h)
	}
	return headers, nil
}

// Preview stores an upload and proposes one text column per header.
func (s *CsvService) Preview(ctx context.Context, user User, upload CsvUpload) (*CsvPreview, error) {
	delimiter, err := parseDelimiter(upload.Delimiter)
	if err != nil {
		return nil, err
	}
	headers, err := readHeaders(upload.Content, delimiter)
	if err != nil {
		return nil, err
	}

	maps := make([]models.CsvFieldMap, 0, len(headers))
	fields := make([]FieldMapRequest, 0, len(headers))
	for _, h := range headers {
		maps = append(maps, models.CsvFieldMap{
			OriginalName: h,
			DisplayName:  h,
			FieldName:    h,
			FieldType:    models.FieldText,
		})
		fields = append(fields, FieldMapRequest{
			OriginalName: h,
			DisplayName:  h,
			FieldType:    models.FieldText,
		})
	}

	imp := &models.CsvImport{
		FileName:    upload.FileName,
		FileContent: upload.Content,
		Delimiter:   string(delimiter),
		Headers:     headers,
	}
	if err := s.imports.Create(ctx, imp, maps, user.ID); err != nil {
		return nil, fmt.Errorf("failed to save csv import: %w", err)
	}
	return &CsvPreview{ImportID: imp.ID, Fields: fields}, nil
}

// CreateTable finishes an import: it creates the table from the edited field
// mapping and imports every row of the stored file into it.
func (s *CsvService) CreateTable(ctx context.Context, user User, req CreateTableRequest) (*ImportResult, error) {
	if req.ImportID == nil {
		return nil, errs.Validation("import_id", "this field is required")
	}
	imp, err := s.get(ctx, user, *req.ImportID)
	if err != nil {
		return nil, err
	}
	if imp.TableID != nil {
		return nil, errs.Validation("import_id", "this import was already committed")
	}

	fields := req.Fields
	if len(fields) == 0 {
		stored, err := s.imports.FieldMapsByImport(ctx, imp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load field maps: %w", err)
		}
		for _, m := range stored {
			fields = append(fields, FieldMapRequest{
				OriginalName: m.OriginalName,
				DisplayName:  m.DisplayName,
				FieldType:    m.FieldType,
				FieldFormat:  m.FieldFormat,
			})
		}
	}
	maps, columns, err := buildFieldMaps(imp.Headers, fields)
	if err != nil {
		return nil, err
	}

	req.Columns = append(req.Columns, columns...)
	t, err := s.schema.Create(ctx, user, req)
	if err != nil {
		return nil, err
	}
	if err := s.imports.SaveFieldMaps(ctx, imp.ID, t.ID, maps); err != nil {
		return nil, fmt.Errorf("failed to save field maps: %w", err)
	}

	imp.TableID = &t.ID
	if err := s.run(ctx, t, imp, maps); err != nil {
		return nil, err
	}
	return &ImportResult{Table: t, Import: imp}, nil
}

// ManualImport imports a new file into an existing table. Headers are mapped
// through the table's saved field maps, or onto columns of the same name.
func (s *CsvService) ManualImport(ctx context.Context, user User, tableID uuid.UUID, upload CsvUpload) (*models.CsvImport, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return nil, err
	}
	delimiter, err := parseDelimiter(upload.Delimiter)
	if err != nil {
		return nil, err
	}
	headers, err := readHeaders(upload.Content, delimiter)
	if err != nil {
		return nil, err
	}

	saved, err := s.imports.FieldMapsByTable(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load field maps: %w", err)
	}
	maps := matchHeaders(t, headers, saved)
	if len(maps) == 0 {
		return nil, errs.Validation("file", "no header of the file matches a column of %q", t.Name)
	}

	imp := &models.CsvImport{
		TableID:     &t.ID,
		FileName:    upload.FileName,
		FileContent: upload.Content,
		Delimiter:   string(delimiter),
		Headers:     headers,
	}
	if err := s.imports.Create(ctx, imp, nil, user.ID); err != nil {
		return nil, fmt.Errorf("failed to save csv import: %w", err)
	}
	if err := s.run(ctx, t, imp, maps); err != nil {
		return nil, err
	}
	return imp, nil
}

func (s *CsvService) Get(ctx context.Context, user User, id uuid.UUID) (*models.CsvImport, error) {
	return s.get(ctx, user, id)
}

func (s *CsvService) List(ctx context.Context, user User) ([]models.CsvImport, error) {
	imports, err := s.imports.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list csv imports: %w", err)
	}
	return imports, nil
}

// buildFieldMaps validates an edited mapping against the file headers and
// derives the table columns from it.
func buildFieldMaps(headers []string, fields []FieldMapRequest) ([]models.CsvFieldMap, []ColumnRequest, error) {
	if len(fields) == 0 {
		return nil, nil, errs.Validation("fields", "at least one field is required")
	}

	maps := make([]models.CsvFieldMap, 0, len(fields))
	columns := make([]ColumnRequest, 0, len(fields))
	mapped := map[string]bool{}
	for _, f := range fields {
		if !utils.Contains(headers, f.OriginalName) {
			return nil, nil, errs.Validation("fields", "%q is not a header of the file", f.OriginalName)
		}
		if mapped[f.OriginalName] {
			return nil, nil, errs.Validation("fields", "%q is mapped twice", f.OriginalName)
		}
		mapped[f.OriginalName] = true

		display := strings.TrimSpace(f.DisplayName)
		if display == "" {
			display = f.OriginalName
		}
		name := strings.TrimSpace(f.FieldName)
		if name == "" {
			name = utils.SnakeCase(display)
		}
		ft := f.FieldType
		if ft == "" {
			ft = models.FieldText
		}

		maps = append(maps, models.CsvFieldMap{
			OriginalName: f.OriginalName,
			DisplayName:  display,
			FieldName:    name,
			FieldType:    ft,
			FieldFormat:  f.FieldFormat,
		})
		columns = append(columns, ColumnRequest{Name: name, DisplayName: display, FieldType: ft})
	}
	return maps, columns, nil
}

// matchHeaders maps headers through saved field maps first, then onto
// columns with the same name or display name.
func matchHeaders(t *models.Table, headers []string, saved []models.CsvFieldMap) []models.CsvFieldMap {
	byHeader := make(map[string]models.CsvFieldMap, len(saved))
	for _, m := range saved {
		if t.Column(m.FieldName) != nil {
			byHeader[m.OriginalName] = m
		}
	}

	var maps []models.CsvFieldMap
	for _, h := range headers {
		if m, ok := byHeader[h]; ok {
			maps = append(maps, m)
			continue
		}
		col := t.Column(h)
		if col == nil {
			for i := range t.Columns {
				if strings.EqualFold(t.Columns[i].DisplayName, h) {
					col = &t.Columns[i]
					break
				}
			}
		}
		if col != nil {
			maps = append(maps, models.CsvFieldMap{
				OriginalName: h,
				DisplayName:  col.DisplayName,
				FieldName:    col.Name,
				FieldType:    col.FieldType,
			})
		}
	}
	return maps
}

// binding ties a file column position to the table column it fills.
type binding struct {
	pos    int
	header string
	column models.TableColumn
	format string
}

// run imports every row of imp into t and saves the outcome on imp. Rows
// that fail coercion are recorded and still written with their good fields.
func (s *CsvService) run(ctx context.Context, t *models.Table, imp *models.CsvImport, maps []models.CsvFieldMap) error {
	delimiter, err := parseDelimiter(imp.Delimiter)
	if err != nil {
		return err
	}
	r := newCSVReader(imp.FileContent, delimiter)
	header, err := r.Read()
	if err != nil {
		return errs.Validation("file", "invalid csv: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	bindings := make([]binding, 0, len(maps))
	for _, m := range maps {
		col := t.Column(m.FieldName)
		if col == nil {
			continue
		}
		for pos, h := range header {
			if h == m.OriginalName {
				bindings = append(bindings, binding{pos: pos, header: h, column: *col, format: m.FieldFormat})
				break
			}
		}
	}

	imp.Errors = []models.CsvImportError{}
	imp.ErrorsCount, imp.ImportsCount = 0, 0
	fail := func(row map[string]string, msg string) {
		if row == nil {
			row = map[string]string{}
		}
		imp.Errors = append(imp.Errors, models.CsvImportError{Row: row, Error: msg})
		imp.ErrorsCount++
	}

	batch := make([]map[string]any, 0, BatchSize)
	flush := func() error {
		if _, err := s.entries.BulkCreate(ctx, t.ID, batch); err != nil {
			return fmt.Errorf("failed to write entries: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			fail(nil, parseErr.Error())
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read csv: %w", err)
		}

		row := rawRow(header, record)
		if len(record) != len(header) {
			fail(row, fmt.Sprintf("row has %d columns, expected %d", len(record), len(header)))
			continue
		}

		data := make(map[string]any, len(bindings))
		var problems []string
		for _, b := range bindings {
			raw := record[b.pos]
			if strings.TrimSpace(raw) == "" {
				continue
			}
			v, err := query.StoredValue(b.column, raw, b.format)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", b.header, err))
				continue
			}
			data[b.column.Name] = v
		}
		if len(problems) > 0 {
			fail(row, strings.Join(problems, "; "))
		} else {
			imp.ImportsCount++
		}

		batch = append(batch, data)
		if len(batch) == BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := s.imports.SaveResult(ctx, imp); err != nil {
		return fmt.Errorf("failed to save import result: %w", err)
	}
	s.logger.Info("CSV import finished",
		zap.String("import_id", imp.ID.String()),
		zap.String("table_id", t.ID.String()),
		zap.Int("imported", imp.ImportsCount),
		zap.Int("errors", imp.ErrorsCount),
	)
	return nil
}

// rawRow keys a record by header. Extra cells get positional keys.
func rawRow(header, record []string) map[string]string {
	row := make(map[string]string, len(record))
	for i, v := range record {
		if i < len(header) {
			row[header[i]] = v
		} else {
			row[fmt.Sprintf("column_%d", i+1)] = v
		}
	}
	return row
}

func (s *CsvService) get(ctx context.Context, user User, id uuid.UUID) (*models.CsvImport, error) {
	imp, err := s.imports.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load csv import: %w", err)
	}
	if imp == nil {
		return nil, errs.NotFound("csv import")
	}
	if !owns(user, imp.OwnerID) {
		return nil, errs.ErrForbidden
	}
	return imp, nil
}
