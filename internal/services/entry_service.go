package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
)

type EntryService struct {
	entries EntryStore
	catalog *Catalog
}

func NewEntryService(entries EntryStore, catalog *Catalog) *EntryService {
	return &EntryService{
		entries: entries,
		catalog: catalog,
	}
}

// tableQuery translates listing parameters for one table. Text values match
// case-insensitively.
func tableQuery(t *models.Table, params url.Values) (query.Query, []query.Field, error) {
	tr := query.ForTable(t, query.MatchInsensitive)
	conds, err := tr.Translate(params)
	if err != nil {
		return query.Query{}, nil, err
	}
	selected := tr.SelectFields(params.Get(query.ParamFields))
	q := query.Query{
		TableID:    t.ID,
		Predicates: query.Predicates(conds),
		Order:      tr.Order(params.Get(query.ParamOrder), selected).StoreOrder(),
	}
	return q, selected, nil
}

// project keeps only the selected attributes of every entry.
func project(entries []models.Entry, fields []query.Field) []models.Entry {
	for i := range entries {
		data := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := entries[i].Data[f.Source]; ok {
				data[f.Key] = v
			}
		}
		entries[i].Data = data
	}
	return entries
}

// List returns one page of a table's entries filtered, ordered and projected
// by params.
func (s *EntryService) List(ctx context.Context, user User, tableID uuid.UUID, params url.Values) (*Page[models.Entry], error) {
	t, err := s.catalog.TableFor(ctx, user, ActionView, tableID)
	if err != nil {
		return nil, err
	}
	page, err := query.ParsePage(params)
	if err != nil {
		return nil, err
	}
	q, selected, err := tableQuery(t, params)
	if err != nil {
		return nil, err
	}

	count, err := s.entries.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	if err := page.Check(count); err != nil {
		return nil, err
	}

	q.Limit, q.Offset = page.Size, page.Offset()
	entries, err := s.entries.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return &Page[models.Entry]{Page: page, Count: count, Results: project(entries, selected)}, nil
}

func (s *EntryService) Get(ctx context.Context, user User, tableID uuid.UUID, id int64) (*models.Entry, error) {
	if _, err := s.catalog.TableFor(ctx, user, ActionView, tableID); err != nil {
		return nil, err
	}
	return s.get(ctx, tableID, id)
}

func (s *EntryService) Create(ctx context.Context, user User, tableID uuid.UUID, data map[string]any) (*models.Entry, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return nil, err
	}
	values, err := coerceEntry(t, data)
	if err != nil {
		return nil, err
	}

	e := &models.Entry{TableID: t.ID, Data: values}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}
	return e, nil
}

// Update replaces the attribute map of an entry.
func (s *EntryService) Update(ctx context.Context, user User, tableID uuid.UUID, id int64, data map[string]any) (*models.Entry, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionChange, tableID)
	if err != nil {
		return nil, err
	}
	values, err := coerceEntry(t, data)
	if err != nil {
		return nil, err
	}

	e := &models.Entry{ID: id, TableID: t.ID, Data: values}
	found, err := s.entries.Update(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	if !found {
		return nil, errs.NotFound("entry")
	}
	return e, nil
}

func (s *EntryService) Delete(ctx context.Context, user User, tableID uuid.UUID, id int64) error {
	if _, err := s.catalog.TableFor(ctx, user, ActionDelete, tableID); err != nil {
		return err
	}
	found, err := s.entries.Delete(ctx, tableID, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if !found {
		return errs.NotFound("entry")
	}
	return nil
}

func (s *EntryService) get(ctx context.Context, tableID uuid.UUID, id int64) (*models.Entry, error) {
	e, err := s.entries.GetByID(ctx, tableID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	if e == nil {
		return nil, errs.NotFound("entry")
	}
	return e, nil
}

// coerceEntry checks every key against the table's columns and stores each
// value in its column's type. Null values are dropped.
func coerceEntry(t *models.Table, data map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(data))
	for key, raw := range data {
		col := t.Column(key)
		if col == nil {
			return nil, errs.Validation(key, "unknown field")
		}
		v, err := query.StoredFromJSON(*col, raw)
		if err != nil {
			return nil, errs.Validation(key, "%v", err)
		}
		if v != nil {
			values[key] = v
		}
	}
	return values, nil
}
