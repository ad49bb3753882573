package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
)

// BatchSize bounds the rows held in memory by materialization, import and
// export loops.
const BatchSize = 1000

type FilterService struct {
	filters FilterStore
	entries EntryStore
	tables  TableStore
	schema  *TableService
	catalog *Catalog
	join    *joiner
	logger  *zap.Logger
}

func NewFilterService(filters FilterStore, entries EntryStore, tables TableStore, schema *TableService, catalog *Catalog, logger *zap.Logger) *FilterService {
	return &FilterService{
		filters: filters,
		entries: entries,
		tables:  tables,
		schema:  schema,
		catalog: catalog,
		join:    &joiner{entries: entries, logger: logger},
		logger:  logger,
	}
}

type FilterJoinRequest struct {
	TableID     uuid.UUID   `json:"table"`
	JoinFieldID uuid.UUID   `json:"join_field"`
	FieldIDs    []uuid.UUID `json:"fields"`
}

type FilterRequest struct {
	Name            string              `json:"name" binding:"required"`
	PrimaryTableID  uuid.UUID           `json:"primary_table" binding:"required"`
	JoinFieldID     uuid.UUID           `json:"join_field" binding:"required"`
	PrimaryFieldIDs []uuid.UUID         `json:"primary_table_fields"`
	JoinTables      []FilterJoinRequest `json:"join_tables"`
}

type MaterializeRequest struct {
	TableName  string     `json:"table_name" binding:"required"`
	FilterID   uuid.UUID  `json:"filter_id" binding:"required"`
	DatabaseID *uuid.UUID `json:"database_id"`
}

func (r FilterRequest) filter() *models.Filter {
	f := &models.Filter{
		Name:                r.Name,
		PrimaryTableID:      r.PrimaryTableID,
		PrimaryJoinColumnID: r.JoinFieldID,
		PrimaryFieldIDs:     r.PrimaryFieldIDs,
	}
	for _, j := range r.JoinTables {
		f.Joins = append(f.Joins, models.FilterJoinTable{
			TableID:      j.TableID,
			JoinColumnID: j.JoinFieldID,
			FieldIDs:     j.FieldIDs,
		})
	}
	return f
}

// plan resolves f against the current schema. The user must be able to view
// every table of the join.
func (s *FilterService) plan(ctx context.Context, user User, f *models.Filter) (*joinPlan, error) {
	if len(f.Joins) == 0 {
		return nil, errs.Validation("join_tables", "at least one join table is required")
	}

	sides := make([]joinSide, 0, len(f.Joins)+1)
	add := func(field string, tableID, joinColID uuid.UUID, fieldIDs []uuid.UUID) error {
		t, err := s.catalog.TableFor(ctx, user, ActionView, tableID)
		if errors.Is(err, errs.ErrNotFound) {
			return errs.Validation(field+"table", "unknown table %s", tableID)
		}
		if err != nil {
			return err
		}
		side, err := newSide(t, joinColID, fieldIDs, field)
		if err != nil {
			return err
		}
		sides = append(sides, side)
		return nil
	}

	if err := add("primary_", f.PrimaryTableID, f.PrimaryJoinColumnID, f.PrimaryFieldIDs); err != nil {
		return nil, err
	}
	for i, j := range f.Joins {
		if err := add(fmt.Sprintf("join_tables[%d].", i), j.TableID, j.JoinColumnID, j.FieldIDs); err != nil {
			return nil, err
		}
	}
	return newJoinPlan(f.ID, sides)
}

func (s *FilterService) Create(ctx context.Context, user User, req FilterRequest) (*models.Filter, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	req.Name = name

	f := req.filter()
	if _, err := s.plan(ctx, user, f); err != nil {
		return nil, err
	}
	if err := s.filters.Create(ctx, f, user.ID); err != nil {
		return nil, fmt.Errorf("failed to save filter: %w", err)
	}
	return f, nil
}

func (s *FilterService) Get(ctx context.Context, user User, id uuid.UUID) (*models.Filter, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(ctx, user, f) {
		return nil, errs.ErrForbidden
	}
	return f, nil
}

// List returns the filters whose tables the user may all view.
func (s *FilterService) List(ctx context.Context, user User) ([]models.Filter, error) {
	filters, err := s.filters.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}

	visible := make([]models.Filter, 0, len(filters))
	for i := range filters {
		if s.visible(ctx, user, &filters[i]) {
			visible = append(visible, filters[i])
		}
	}
	return visible, nil
}

func (s *FilterService) Update(ctx context.Context, user User, id uuid.UUID, req FilterRequest) (*models.Filter, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(user, existing.OwnerID) {
		return nil, errs.ErrForbidden
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	req.Name = name

	f := req.filter()
	f.ID = existing.ID
	f.OwnerID = existing.OwnerID
	f.CreatedAt = existing.CreatedAt
	if _, err := s.plan(ctx, user, f); err != nil {
		return nil, err
	}

	found, err := s.filters.Update(ctx, f, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update filter: %w", err)
	}
	if !found {
		return nil, errs.NotFound("filter")
	}
	return f, nil
}

func (s *FilterService) Delete(ctx context.Context, user User, id uuid.UUID) error {
	f, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !owns(user, f.OwnerID) {
		return errs.ErrForbidden
	}
	if _, err := s.filters.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}
	return nil
}

// Entries returns one page of merged join rows. Keys are "<table slug>__<column>".
func (s *FilterService) Entries(ctx context.Context, user User, id uuid.UUID, params url.Values) (*Page[map[string]any], error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.plan(ctx, user, f)
	if err != nil {
		return nil, err
	}
	page, err := query.ParsePage(params)
	if err != nil {
		return nil, err
	}
	jq, err := p.translate(params)
	if err != nil {
		return nil, err
	}

	count, err := s.entries.Count(ctx, jq.driving)
	if err != nil {
		return nil, fmt.Errorf("failed to count join rows: %w", err)
	}
	if err := page.Check(count); err != nil {
		return nil, err
	}

	q := jq.driving
	q.Limit, q.Offset = page.Size, page.Offset()
	rows, _, err := s.join.page(ctx, p, jq, q)
	if err != nil {
		return nil, err
	}
	return &Page[map[string]any]{Page: page, Count: count, Results: rows}, nil
}

// Materialize writes every merged row of a filter into a new table. The new
// table is removed again when any step fails.
func (s *FilterService) Materialize(ctx context.Context, user User, req MaterializeRequest) (*models.Table, error) {
	f, err := s.get(ctx, req.FilterID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.Validation("filter_id", "unknown filter")
	}
	if err != nil {
		return nil, err
	}
	p, err := s.plan(ctx, user, f)
	if err != nil {
		return nil, err
	}
	jq, err := p.translate(url.Values{})
	if err != nil {
		return nil, err
	}

	databaseID := p.sides[0].table.DatabaseID
	if req.DatabaseID != nil {
		databaseID = *req.DatabaseID
	}
	t, err := s.schema.Create(ctx, user, CreateTableRequest{
		Name:       req.TableName,
		DatabaseID: databaseID,
		Columns:    p.columns(jq.selected),
	})
	if err != nil {
		return nil, err
	}

	var written int64
	err = s.join.each(ctx, p, jq, BatchSize, func(rows []map[string]any) error {
		n, err := s.entries.BulkCreate(ctx, t.ID, rows)
		written += n
		return err
	})
	if err != nil {
		if _, derr := s.tables.Delete(ctx, t.ID); derr != nil {
			s.logger.Error("Failed to remove partially materialized table", zap.String("table_id", t.ID.String()), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to materialize filter: %w", err)
	}

	s.logger.Info("Filter materialized",
		zap.String("filter_id", f.ID.String()),
		zap.String("table_id", t.ID.String()),
		zap.Int64("entries", written),
	)
	return t, nil
}

func (s *FilterService) get(ctx context.Context, id uuid.UUID) (*models.Filter, error) {
	f, err := s.filters.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter: %w", err)
	}
	if f == nil {
		return nil, errs.NotFound("filter")
	}
	return f, nil
}

func (s *FilterService) visible(ctx context.Context, user User, f *models.Filter) bool {
	for _, id := range f.TableIDs() {
		t, err := s.catalog.Table(ctx, id)
		if err != nil || !s.catalog.Can(user, ActionView, t) {
			return false
		}
	}
	return true
}
