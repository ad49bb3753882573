package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/query"
	"tabula/internal/repositories"
	"tabula/internal/utils"
)

type ChartService struct {
	charts  ChartStore
	entries EntryStore
	catalog *Catalog
}

func NewChartService(charts ChartStore, entries EntryStore, catalog *Catalog) *ChartService {
	return &ChartService{
		charts:  charts,
		entries: entries,
		catalog: catalog,
	}
}

type ChartRequest struct {
	Name                 string                `json:"name" binding:"required"`
	TableID              uuid.UUID             `json:"table" binding:"required"`
	ChartType            string                `json:"chart_type"`
	TimelineFieldID      *uuid.UUID            `json:"timeline_field"`
	TimelinePeriod       models.TimelinePeriod `json:"timeline_period"`
	TimelineIncludeNulls bool                  `json:"timeline_include_nulls"`
	XAxisFieldID         *uuid.UUID            `json:"x_axis_field"`
	YAxisFieldID         *uuid.UUID            `json:"y_axis_field"`
	YAxisFunction        models.AggregateFunc  `json:"y_axis_function"`
}

// PreviewParams are the query parameters that describe an unsaved chart.
// They are not treated as entry predicates.
var PreviewParams = []string{
	"table",
	"chart_type",
	"timeline_field",
	"timeline_period",
	"timeline_include_nulls",
	"x_axis_field",
	"y_axis_field",
	"y_axis_function",
}

type ChartDataset struct {
	Label string     `json:"label"`
	Data  []*float64 `json:"data"`
}

type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

func (r ChartRequest) chart() *models.Chart {
	return &models.Chart{
		Name:                 r.Name,
		TableID:              r.TableID,
		ChartType:            r.ChartType,
		TimelineFieldID:      r.TimelineFieldID,
		TimelinePeriod:       r.TimelinePeriod,
		TimelineIncludeNulls: r.TimelineIncludeNulls,
		XAxisFieldID:         r.XAxisFieldID,
		YAxisFieldID:         r.YAxisFieldID,
		YAxisFunction:        r.YAxisFunction,
	}
}

// chartAxes are the columns a chart aggregates over. Any of them may be nil.
type chartAxes struct {
	timeline *models.TableColumn
	x        *models.TableColumn
	y        *models.TableColumn
}

func resolveAxis(t *models.Table, id *uuid.UUID, field string) (*models.TableColumn, error) {
	if id == nil {
		return nil, nil
	}
	col := t.ColumnByID(*id)
	if col == nil {
		return nil, errs.Validation(field, "column does not belong to table %q", t.Name)
	}
	return col, nil
}

// validateChart fills in chart defaults and checks the axes against t.
func validateChart(t *models.Table, c *models.Chart) (chartAxes, error) {
	var axes chartAxes
	var err error

	if c.YAxisFunction == "" {
		c.YAxisFunction = models.AggCount
	}
	if !utils.Contains(models.ChartTypes, c.ChartType) {
		return axes, errs.Validation("chart_type", "must be one of %v", models.ChartTypes)
	}
	if !c.YAxisFunction.Valid() {
		return axes, errs.Validation("y_axis_function", "unknown function %q", c.YAxisFunction)
	}

	if axes.timeline, err = resolveAxis(t, c.TimelineFieldID, "timeline_field"); err != nil {
		return axes, err
	}
	if axes.x, err = resolveAxis(t, c.XAxisFieldID, "x_axis_field"); err != nil {
		return axes, err
	}
	if axes.y, err = resolveAxis(t, c.YAxisFieldID, "y_axis_field"); err != nil {
		return axes, err
	}

	if axes.timeline != nil {
		if axes.timeline.FieldType != models.FieldDate {
			return axes, errs.Validation("timeline_field", "timeline column must be a date")
		}
		if c.TimelinePeriod == "" {
			c.TimelinePeriod = models.PeriodDay
		}
		if !c.TimelinePeriod.Valid() {
			return axes, errs.Validation("timeline_period", "unknown period %q", c.TimelinePeriod)
		}
	}
	if axes.timeline == nil && axes.x == nil {
		return axes, errs.Validation("x_axis_field", "a timeline or x axis column is required")
	}
	if c.YAxisFunction != models.AggCount {
		if axes.y == nil {
			return axes, errs.Validation("y_axis_field", "required for %s", c.YAxisFunction)
		}
		if !axes.y.FieldType.IsNumeric() {
			return axes, errs.Validation("y_axis_field", "%s needs a numeric column", c.YAxisFunction)
		}
	}
	return axes, nil
}

func (s *ChartService) Create(ctx context.Context, user User, req ChartRequest) (*models.Chart, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	req.Name = name

	t, err := s.table(ctx, user, req.TableID)
	if err != nil {
		return nil, err
	}
	c := req.chart()
	if _, err := validateChart(t, c); err != nil {
		return nil, err
	}
	if err := s.charts.Create(ctx, c, user.ID); err != nil {
		return nil, fmt.Errorf("failed to save chart: %w", err)
	}
	return c, nil
}

func (s *ChartService) Get(ctx context.Context, user User, id uuid.UUID) (*models.Chart, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.TableFor(ctx, user, ActionView, c.TableID); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the charts on tables the user may view, optionally of one
// table only.
func (s *ChartService) List(ctx context.Context, user User, tableID *uuid.UUID) ([]models.Chart, error) {
	charts, err := s.charts.List(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}

	visible := make([]models.Chart, 0, len(charts))
	allowed := map[uuid.UUID]bool{}
	for _, c := range charts {
		ok, seen := allowed[c.TableID]
		if !seen {
			t, err := s.catalog.Table(ctx, c.TableID)
			ok = err == nil && s.catalog.Can(user, ActionView, t)
			allowed[c.TableID] = ok
		}
		if ok {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (s *ChartService) Update(ctx context.Context, user User, id uuid.UUID, req ChartRequest) (*models.Chart, error) {
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

	t, err := s.table(ctx, user, req.TableID)
	if err != nil {
		return nil, err
	}
	c := req.chart()
	c.ID = existing.ID
	c.OwnerID = existing.OwnerID
	c.CreatedAt = existing.CreatedAt
	if _, err := validateChart(t, c); err != nil {
		return nil, err
	}

	found, err := s.charts.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to update chart: %w", err)
	}
	if !found {
		return nil, errs.NotFound("chart")
	}
	return c, nil
}

func (s *ChartService) Delete(ctx context.Context, user User, id uuid.UUID) error {
	c, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !owns(user, c.OwnerID) {
		return errs.ErrForbidden
	}
	if _, err := s.charts.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chart: %w", err)
	}
	return nil
}

// Data computes a saved chart. params narrow the entries with the listing
// predicate grammar.
func (s *ChartService) Data(ctx context.Context, user User, id uuid.UUID, params url.Values) (*ChartData, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.catalog.TableFor(ctx, user, ActionView, c.TableID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, t, c, params)
}

// Preview computes an unsaved chart described by req.
func (s *ChartService) Preview(ctx context.Context, user User, req ChartRequest, params url.Values) (*ChartData, error) {
	t, err := s.table(ctx, user, req.TableID)
	if err != nil {
		return nil, err
	}

	narrowed := url.Values{}
	for k, v := range params {
		if !utils.Contains(PreviewParams, k) {
			narrowed[k] = v
		}
	}
	return s.compute(ctx, t, req.chart(), narrowed)
}

func (s *ChartService) compute(ctx context.Context, t *models.Table, c *models.Chart, params url.Values) (*ChartData, error) {
	axes, err := validateChart(t, c)
	if err != nil {
		return nil, err
	}
	conds, err := query.ForTable(t, query.MatchInsensitive).Translate(params)
	if err != nil {
		return nil, err
	}

	agg := repositories.Aggregation{
		TableID:    t.ID,
		Predicates: query.Predicates(conds),
		Period:     c.TimelinePeriod,
		Func:       c.YAxisFunction,
	}
	if axes.timeline != nil {
		agg.TimelineKey = axes.timeline.Name
	}
	if axes.x != nil {
		agg.XKey = axes.x.Name
	}
	if axes.y != nil {
		agg.YKey = axes.y.Name
	}

	rows, err := s.entries.Aggregate(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate entries: %w", err)
	}

	label := string(c.YAxisFunction)
	if axes.y != nil {
		label = axes.y.DisplayName
	}
	if axes.timeline == nil {
		return categoryData(rows, label), nil
	}
	return timelineData(rows, c, label), nil
}

const nullLabel = "null"

func xLabel(x *string) string {
	if x == nil {
		return nullLabel
	}
	return *x
}

// categoryData has one label per x value and a single dataset.
func categoryData(rows []repositories.AggregateRow, label string) *ChartData {
	data := &ChartData{
		Labels:   make([]string, 0, len(rows)),
		Datasets: []ChartDataset{{Label: label, Data: make([]*float64, 0, len(rows))}},
	}
	for _, r := range rows {
		data.Labels = append(data.Labels, xLabel(r.X))
		data.Datasets[0].Data = append(data.Datasets[0].Data, r.Value)
	}
	return data
}

// timelineData has one label per bucket and one dataset per x value, or a
// single dataset without an x axis. Buckets missing from a dataset read 0
// for count and null otherwise.
func timelineData(rows []repositories.AggregateRow, c *models.Chart, label string) *ChartData {
	var buckets []time.Time
	seenBucket := map[int64]bool{}
	values := map[string]map[int64]*float64{}
	var series []string

	for _, r := range rows {
		if r.Bucket == nil {
			continue
		}
		b := r.Bucket.UTC()
		if !seenBucket[b.Unix()] {
			seenBucket[b.Unix()] = true
			buckets = append(buckets, b)
		}

		key := label
		if c.XAxisFieldID != nil {
			key = xLabel(r.X)
		}
		if values[key] == nil {
			values[key] = map[int64]*float64{}
			series = append(series, key)
		}
		values[key][b.Unix()] = r.Value
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })
	if c.TimelineIncludeNulls && len(buckets) > 0 {
		buckets = bucketRange(buckets[0], buckets[len(buckets)-1], c.TimelinePeriod)
	}
	sort.Strings(series)

	data := &ChartData{
		Labels:   make([]string, len(buckets)),
		Datasets: make([]ChartDataset, 0, len(series)),
	}
	for i, b := range buckets {
		data.Labels[i] = bucketLabel(b, c.TimelinePeriod)
	}
	for _, key := range series {
		ds := ChartDataset{Label: key, Data: make([]*float64, len(buckets))}
		for i, b := range buckets {
			v, ok := values[key][b.Unix()]
			if !ok && c.YAxisFunction == models.AggCount {
				zero := 0.0
				v = &zero
			}
			ds.Data[i] = v
		}
		data.Datasets = append(data.Datasets, ds)
	}
	return data
}

// truncate aligns t to the start of its bucket the way date_trunc does.
// Weeks start on Monday.
func truncate(t time.Time, period models.TimelinePeriod) time.Time {
	y, m, d := t.UTC().Date()
	switch period {
	case models.PeriodWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case models.PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(t time.Time, period models.TimelinePeriod) time.Time {
	switch period {
	case models.PeriodWeek:
		return t.AddDate(0, 0, 7)
	case models.PeriodMonth:
		return t.AddDate(0, 1, 0)
	case models.PeriodYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// bucketRange returns every bucket start from the bucket of start up to end.
func bucketRange(start, end time.Time, period models.TimelinePeriod) []time.Time {
	var buckets []time.Time
	for b := truncate(start, period); !b.After(end); b = nextBucket(b, period) {
		buckets = append(buckets, b)
	}
	return buckets
}

func bucketLabel(t time.Time, period models.TimelinePeriod) string {
	switch period {
	case models.PeriodMonth:
		return t.Format("2006-01")
	case models.PeriodYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

func (s *ChartService) table(ctx context.Context, user User, id uuid.UUID) (*models.Table, error) {
	t, err := s.catalog.TableFor(ctx, user, ActionView, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.Validation("table", "unknown table")
	}
	return t, err
}

func (s *ChartService) get(ctx context.Context, id uuid.UUID) (*models.Chart, error) {
	c, err := s.charts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}
	if c == nil {
		return nil, errs.NotFound("chart")
	}
	return c, nil
}
