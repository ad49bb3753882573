package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
)

// drivingSide is the join table whose entries produce result rows. Every
// other side is looked up by join key.
const drivingSide = 1

// joinSide is one table taking part in a filter join.
type joinSide struct {
	table   *models.Table
	joinCol *models.TableColumn
	fields  []models.TableColumn
}

// joinPlan is a resolved filter. sides[0] is the primary table, the join
// tables follow in their saved order.
type joinPlan struct {
	filterID uuid.UUID
	sides    []joinSide
	tr       *query.Translator
}

// joinQuery is one translated request against a plan.
type joinQuery struct {
	driving  query.Query
	groups   map[int][]query.Predicate
	selected []query.Field
}

func newSide(t *models.Table, joinColID uuid.UUID, fieldIDs []uuid.UUID, field string) (joinSide, error) {
	side := joinSide{table: t, joinCol: t.ColumnByID(joinColID)}
	if side.joinCol == nil {
		return joinSide{}, errs.Validation(field+"join_field", "column does not belong to table %q", t.Name)
	}
	if len(fieldIDs) == 0 {
		side.fields = t.Columns
		return side, nil
	}
	for _, id := range fieldIDs {
		col := t.ColumnByID(id)
		if col == nil {
			return joinSide{}, errs.Validation(field+"fields", "column %s does not belong to table %q", id, t.Name)
		}
		side.fields = append(side.fields, *col)
	}
	return side, nil
}

func newJoinPlan(filterID uuid.UUID, sides []joinSide) (*joinPlan, error) {
	if len(sides) <= drivingSide {
		return nil, errs.Validation("join_tables", "at least one join table is required")
	}

	seen := make(map[string]bool, len(sides))
	var fields []query.Field
	for i, side := range sides {
		if seen[side.table.Slug] {
			return nil, errs.Validation("join_tables", "table slug %q is used twice", side.table.Slug)
		}
		seen[side.table.Slug] = true

		for _, c := range side.fields {
			fields = append(fields, query.Field{
				Key:    side.table.Slug + "__" + c.Name,
				Source: c.Name,
				Type:   c.FieldType,
				Group:  i,
			})
		}
	}

	return &joinPlan{
		filterID: filterID,
		sides:    sides,
		tr:       &query.Translator{Fields: fields, Match: query.MatchExact},
	}, nil
}

// link ties driving entries to entries of side i.
func (p *joinPlan) link(i int, preds []query.Predicate) query.Link {
	return query.Link{
		TableID:    p.sides[i].table.ID,
		LocalKey:   p.sides[drivingSide].joinCol.Name,
		RemoteKey:  p.sides[i].joinCol.Name,
		Predicates: preds,
	}
}

// translate builds the driving query. Predicates on the other sides become
// EXISTS conditions so only driving rows with a full match are counted and
// paged.
func (p *joinPlan) translate(params url.Values) (*joinQuery, error) {
	conds, err := p.tr.Translate(params)
	if err != nil {
		return nil, err
	}
	groups := query.ByGroup(conds)
	selected := p.tr.SelectFields(params.Get(query.ParamFields))

	preds := append([]query.Predicate{}, groups[drivingSide]...)
	for i := range p.sides {
		if i != drivingSide {
			preds = append(preds, query.Exists(p.link(i, groups[i])))
		}
	}

	q := query.Query{TableID: p.sides[drivingSide].table.ID, Predicates: preds}
	if order := p.tr.Order(params.Get(query.ParamOrder), selected); order != nil {
		q.Order = order.StoreOrder()
		if order.Field.Group != drivingSide {
			// Same predicates as the backfill so the sort key comes from the
			// entry that is displayed.
			link := p.link(order.Field.Group, groups[order.Field.Group])
			q.Order.Link = &link
		}
	}
	return &joinQuery{driving: q, groups: groups, selected: selected}, nil
}

// columns describes the merged rows as columns of a new table.
func (p *joinPlan) columns(selected []query.Field) []ColumnRequest {
	cols := make([]ColumnRequest, 0, len(selected))
	for _, f := range selected {
		req := ColumnRequest{Name: f.Key, FieldType: f.Type}
		if src := p.sides[f.Group].table.Column(f.Source); src != nil {
			req.DisplayName = src.DisplayName
			req.Choices = src.Choices
		}
		cols = append(cols, req)
	}
	return cols
}

// joiner runs join queries page by page.
type joiner struct {
	entries EntryStore
	logger  *zap.Logger
}

// page fetches the driving entries selected by q, backfills the other sides
// for exactly those entries and merges them. It returns the merged rows and
// the number of driving entries read, which is larger when rows were
// skipped.
func (j *joiner) page(ctx context.Context, p *joinPlan, jq *joinQuery, q query.Query) ([]map[string]any, int, error) {
	driver := p.sides[drivingSide]
	driving, err := j.entries.FindKeyed(ctx, q, driver.joinCol.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query %s: %w", driver.table.Slug, err)
	}

	keys := make([]string, 0, len(driving))
	seen := make(map[string]bool, len(driving))
	for _, e := range driving {
		if e.Key != nil && !seen[*e.Key] {
			seen[*e.Key] = true
			keys = append(keys, *e.Key)
		}
	}

	lookups := make([]map[string]models.Entry, len(p.sides))
	for i, side := range p.sides {
		if i == drivingSide {
			continue
		}
		lookups[i], err = j.backfill(ctx, side, jq.groups[i], keys)
		if err != nil {
			return nil, 0, err
		}
	}

	rows := make([]map[string]any, 0, len(driving))
	data := make([]map[string]any, len(p.sides))
	for _, d := range driving {
		if d.Key == nil {
			continue
		}
		complete := true
		for i, side := range p.sides {
			if i == drivingSide {
				data[i] = d.Data
				continue
			}
			match, ok := lookups[i][*d.Key]
			if !ok {
				j.logger.Warn("Skipping join row without match",
					zap.String("filter_id", p.filterID.String()),
					zap.Int64("entry_id", d.ID),
					zap.String("missing_table", side.table.Slug),
					zap.String("join_key", *d.Key),
				)
				complete = false
				break
			}
			data[i] = match.Data
		}
		if !complete {
			continue
		}

		row := make(map[string]any, len(jq.selected))
		for _, f := range jq.selected {
			if v, ok := data[f.Group][f.Source]; ok {
				row[f.Key] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, len(driving), nil
}

// backfill loads the entries of side whose join key is among keys. The
// earliest entry wins when several share a key.
func (j *joiner) backfill(ctx context.Context, side joinSide, preds []query.Predicate, keys []string) (map[string]models.Entry, error) {
	found := make(map[string]models.Entry, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	q := query.Query{
		TableID:    side.table.ID,
		Predicates: append(append([]query.Predicate{}, preds...), query.KeyIn(side.joinCol.Name, keys)),
	}
	entries, err := j.entries.FindKeyed(ctx, q, side.joinCol.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", side.table.Slug, err)
	}
	for _, e := range entries {
		if e.Key == nil {
			continue
		}
		if _, ok := found[*e.Key]; !ok {
			found[*e.Key] = e.Entry
		}
	}
	return found, nil
}

// each walks every merged row of jq in pages of size, handing each page to
// fn. Memory stays bounded by one page.
func (j *joiner) each(ctx context.Context, p *joinPlan, jq *joinQuery, size int, fn func(rows []map[string]any) error) error {
	q := jq.driving
	q.Limit = size
	for q.Offset = 0; ; q.Offset += size {
		rows, n, err := j.page(ctx, p, jq, q)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				return err
			}
		}
		if n < size {
			return nil
		}
	}
}
