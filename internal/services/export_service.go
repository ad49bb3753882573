package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/utils"
)

// ExportContentType is sent with every CSV download.
const ExportContentType = "application/vnd.ms-excel"

// ExportFile is a finished export on disk. The caller sends it and then
// calls Remove.
type ExportFile struct {
	Name string
	Path string
}

func (f *ExportFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type ExportService struct {
	entries EntryStore
	imports CsvImportStore
	filters *FilterService
	catalog *Catalog
	dir     string
	logger  *zap.Logger
	now     func() time.Time
}

func NewExportService(entries EntryStore, imports CsvImportStore, filters *FilterService, catalog *Catalog, dir string, logger *zap.Logger) *ExportService {
	return &ExportService{
		entries: entries,
		imports: imports,
		filters: filters,
		catalog: catalog,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
	}
}

var fileNameReplacer = strings.NewReplacer("/", "-", `\`, "-", `"`, "")

func exportName(base, stamp string) string {
	return fileNameReplacer.Replace(base) + "__" + stamp + ".csv"
}

// ExportTable writes the table's entries selected by params, using the same
// grammar as the entry listing.
func (s *ExportService) ExportTable(ctx context.Context, user User, tableID uuid.UUID, params url.Values) (*ExportFile, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionView, tableID)
	if err != nil {
		return nil, err
	}
	q, selected, err := tableQuery(t, params)
	if err != nil {
		return nil, err
	}

	name := exportName(t.Name, s.now().Format("02.01.2006"))
	return s.write(name, query.Keys(selected), func(w *csv.Writer) error {
		q.Limit = BatchSize
		for q.Offset = 0; ; q.Offset += BatchSize {
			entries, err := s.entries.Find(ctx, q)
			if err != nil {
				return fmt.Errorf("failed to query entries: %w", err)
			}
			for _, e := range entries {
				record := make([]string, len(selected))
				for i, f := range selected {
					record[i] = utils.FormatValue(e.Data[f.Source])
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			s.logger.Debug("Exported table page", zap.String("table_id", t.ID.String()), zap.Int("offset", q.Offset), zap.Int("rows", len(entries)))
			if len(entries) < BatchSize {
				return nil
			}
		}
	})
}

// ExportFilter writes the merged rows of a filter.
func (s *ExportService) ExportFilter(ctx context.Context, user User, filterID uuid.UUID, params url.Values) (*ExportFile, error) {
	f, err := s.filters.get(ctx, filterID)
	if err != nil {
		return nil, err
	}
	p, err := s.filters.plan(ctx, user, f)
	if err != nil {
		return nil, err
	}
	jq, err := p.translate(params)
	if err != nil {
		return nil, err
	}

	keys := query.Keys(jq.selected)
	name := exportName(f.Slug, s.now().Format("02_01_2006__15_04"))
	return s.write(name, keys, func(w *csv.Writer) error {
		return s.filters.join.each(ctx, p, jq, BatchSize, func(rows []map[string]any) error {
			for _, row := range rows {
				record := make([]string, len(keys))
				for i, k := range keys {
					record[i] = utils.FormatValue(row[k])
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ExportErrors writes the rows an import rejected, in the file's header
// order. Cells past the header of ragged rows follow as column_N.
func (s *ExportService) ExportErrors(ctx context.Context, user User, importID uuid.UUID) (*ExportFile, error) {
	imp, err := s.imports.GetByID(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to load csv import: %w", err)
	}
	if imp == nil {
		return nil, errs.NotFound("csv import")
	}
	if !owns(user, imp.OwnerID) {
		return nil, errs.ErrForbidden
	}

	name := "errors__" + fileNameReplacer.Replace(imp.FileName)
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	header := errorHeader(imp.Headers, imp.Errors)
	return s.write(name, header, func(w *csv.Writer) error {
		for _, e := range imp.Errors {
			if err := w.Write(errorRecord(header, e)); err != nil {
				return err
			}
		}
		return nil
	})
}

// errorHeader extends headers with the column_N names of the widest
// ragged row.
func errorHeader(headers []string, rejected []models.CsvImportError) []string {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	extra := 0
	for _, e := range rejected {
		n := 0
		for k := range e.Row {
			if !known[k] {
				n++
			}
		}
		extra = max(extra, n)
	}

	out := append([]string{}, headers...)
	for i := 1; i <= extra; i++ {
		out = append(out, fmt.Sprintf("column_%d", len(headers)+i))
	}
	return out
}

func errorRecord(headers []string, e models.CsvImportError) []string {
	record := make([]string, len(headers))
	for i, h := range headers {
		record[i] = e.Row[h]
	}
	return record
}

// write creates a temporary export file. The file is removed again when
// fill or any write fails.
func (s *ExportService) write(name string, header []string, fill func(w *csv.Writer) error) (*ExportFile, error) {
	f, err := os.CreateTemp(s.dir, "tabula-export-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	file := &ExportFile{Name: name, Path: f.Name()}

	done := false
	defer func() {
		if !done {
			f.Close()
			if err := file.Remove(); err != nil {
				s.logger.Warn("Failed to remove export file", zap.String("path", file.Path), zap.Error(err))
			}
		}
	}()

	w, err := newCSVWriter(f)
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := fill(w); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	done = true
	return file, nil
}
