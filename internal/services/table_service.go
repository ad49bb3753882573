package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/repositories"
	"tabula/internal/utils"
)

type TableService struct {
	databases DatabaseStore
	tables    TableStore
	columns   ColumnStore
	catalog   *Catalog
}

func NewTableService(databases DatabaseStore, tables TableStore, columns ColumnStore, catalog *Catalog) *TableService {
	return &TableService{
		databases: databases,
		tables:    tables,
		columns:   columns,
		catalog:   catalog,
	}
}

type ColumnRequest struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	FieldType   models.FieldType `json:"field_type"`
	Choices     []string         `json:"choices"`
}

type CreateTableRequest struct {
	Name       string          `json:"name" binding:"required"`
	DatabaseID uuid.UUID       `json:"database_id"`
	Active     *bool           `json:"active"`
	Columns    []ColumnRequest `json:"columns"`

	// ImportID and Fields finish a CSV import by creating the table from the
	// edited field mapping.
	ImportID *uuid.UUID        `json:"import_id"`
	Fields   []FieldMapRequest `json:"fields"`
}

type UpdateTableRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

// buildColumn validates req and turns it into a column. taken holds the
// slugs already used in the table.
func buildColumn(req ColumnRequest, taken map[string]bool) (models.TableColumn, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = utils.SnakeCase(req.DisplayName)
	}
	if name == "" {
		return models.TableColumn{}, errs.Validation("name", "column name is required")
	}

	ft := req.FieldType
	if ft == "" {
		ft = models.FieldText
	}
	if !ft.Valid() {
		return models.TableColumn{}, errs.Validation("field_type", "invalid field type %q for column %q", ft, name)
	}

	col := models.TableColumn{
		Name:        name,
		DisplayName: strings.TrimSpace(req.DisplayName),
		FieldType:   ft,
	}
	if ft == models.FieldEnum {
		col.Choices = utils.Unique(req.Choices)
	}
	col.Prepare()

	if col.Slug == "" {
		return models.TableColumn{}, errs.Validation("name", "column %q must contain at least one letter or digit", name)
	}
	if taken[col.Slug] {
		return models.TableColumn{}, errs.Validation("name", "a column with slug %q already exists", col.Slug)
	}
	taken[col.Slug] = true
	return col, nil
}

func (s *TableService) Create(ctx context.Context, user User, req CreateTableRequest) (*models.Table, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	d, err := s.databases.GetByID(ctx, req.DatabaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load database: %w", err)
	}
	if d == nil {
		return nil, errs.Validation("database_id", "unknown database")
	}

	t := &models.Table{
		Name:       name,
		DatabaseID: d.ID,
		Active:     true,
		OwnerID:    user.ID,
	}
	if req.Active != nil {
		t.Active = *req.Active
	}

	taken := map[string]bool{}
	for _, c := range req.Columns {
		col, err := buildColumn(c, taken)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, col)
	}

	if err := s.tables.Create(ctx, t, user.ID); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.Validation("columns", "column slugs must be unique")
		}
		return nil, fmt.Errorf("failed to save table: %w", err)
	}
	return t, nil
}

// List returns the tables of a database the user may view.
func (s *TableService) List(ctx context.Context, user User, databaseID uuid.UUID) ([]models.Table, error) {
	tables, err := s.tables.ListByDatabase(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	visible := make([]models.Table, 0, len(tables))
	for i := range tables {
		if s.catalog.Can(user, ActionView, &tables[i]) {
			visible = append(visible, tables[i])
		}
	}
	return visible, nil
}

func (s *TableService) Get(ctx context.Context, user User, id uuid.UUID) (*models.Table, error) {
	return s.catalog.TableFor(ctx, user, ActionView, id)
}

func (s *TableService) Update(ctx context.Context, user User, id uuid.UUID, req UpdateTableRequest) (*models.Table, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if t.Name, err = validateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Active != nil {
		t.Active = *req.Active
	}

	found, err := s.tables.Update(ctx, t, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update table: %w", err)
	}
	if !found {
		return nil, errs.NotFound("table")
	}
	return t, nil
}

func (s *TableService) Delete(ctx context.Context, user User, id uuid.UUID) error {
	if _, err := s.catalog.TableFor(ctx, user, ActionDelete, id); err != nil {
		return err
	}
	if _, err := s.tables.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	s.catalog.invalidate(ctx, id)
	return nil
}

func (s *TableService) AddColumn(ctx context.Context, user User, tableID uuid.UUID, req ColumnRequest) (*models.TableColumn, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return nil, err
	}

	col, err := buildColumn(req, slugs(t.Columns, uuid.Nil))
	if err != nil {
		return nil, err
	}
	col.TableID = t.ID

	if err := s.columns.Create(ctx, &col); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.Validation("name", "a column with slug %q already exists", col.Slug)
		}
		return nil, fmt.Errorf("failed to save column: %w", err)
	}
	s.catalog.columnsChanged(ctx, t.ID, user.ID)
	return &col, nil
}

// UpdateColumn renames or retypes a column. Existing entry data is left as
// it is and read through the new type.
func (s *TableService) UpdateColumn(ctx context.Context, user User, tableID, columnID uuid.UUID, req ColumnRequest) (*models.TableColumn, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return nil, err
	}
	existing := t.ColumnByID(columnID)
	if existing == nil {
		return nil, errs.NotFound("column")
	}

	if req.Name == "" {
		req.Name = existing.Name
	}
	if req.FieldType == "" {
		req.FieldType = existing.FieldType
	}
	if req.DisplayName == "" && req.Name == existing.Name {
		req.DisplayName = existing.DisplayName
	}
	if req.Choices == nil {
		req.Choices = existing.Choices
	}

	col, err := buildColumn(req, slugs(t.Columns, columnID))
	if err != nil {
		return nil, err
	}
	col.ID = existing.ID
	col.TableID = t.ID
	col.Position = existing.Position

	found, err := s.columns.Update(ctx, &col)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, errs.Validation("name", "a column with slug %q already exists", col.Slug)
		}
		return nil, fmt.Errorf("failed to update column: %w", err)
	}
	if !found {
		return nil, errs.NotFound("column")
	}
	s.catalog.columnsChanged(ctx, t.ID, user.ID)
	return &col, nil
}

func (s *TableService) DeleteColumn(ctx context.Context, user User, tableID, columnID uuid.UUID) error {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return err
	}
	found, err := s.columns.Delete(ctx, t.ID, columnID)
	if err != nil {
		return fmt.Errorf("failed to delete column: %w", err)
	}
	if !found {
		return errs.NotFound("column")
	}
	s.catalog.columnsChanged(ctx, t.ID, user.ID)
	return nil
}

// slugs returns the column slugs of a table, leaving out the column skip.
func slugs(columns []models.TableColumn, skip uuid.UUID) map[string]bool {
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.ID != skip {
			taken[c.Slug] = true
		}
	}
	return taken
}
