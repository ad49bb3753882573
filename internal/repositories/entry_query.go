package repositories

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tabula/internal/models"
	"tabula/internal/query"
)

// sqlBuilder compiles query types into SQL over the entries.data JSONB
// column. Every user supplied value, attribute keys included, is bound as a
// parameter.
type sqlBuilder struct {
	args    []any
	aliases int
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) nextAlias() string {
	b.aliases++
	return "l" + strconv.Itoa(b.aliases)
}

// attr renders the text form of one attribute.
func (b *sqlBuilder) attr(alias, key string) string {
	return fmt.Sprintf("%s.data->>%s::text", alias, b.arg(key))
}

// typed renders an attribute with the comparison semantics of its type.
func (b *sqlBuilder) typed(alias, key string, ft models.FieldType) string {
	switch ft {
	case models.FieldInt, models.FieldFloat:
		return "tabula_try_float8(" + b.attr(alias, key) + ")"
	case models.FieldDate:
		return "tabula_try_timestamptz(" + b.attr(alias, key) + ")"
	case models.FieldObject:
		return fmt.Sprintf("%s.data->%s::text", alias, b.arg(key))
	default:
		return b.attr(alias, key)
	}
}

func (b *sqlBuilder) where(alias string, tableID uuid.UUID, preds []query.Predicate) (string, error) {
	parts := []string{alias + ".table_id = " + b.arg(tableID)}
	for _, p := range preds {
		clause, err := b.predicate(alias, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, " AND "), nil
}

func (b *sqlBuilder) predicate(alias string, p query.Predicate) (string, error) {
	if p.Op == query.OpExists {
		if p.Link == nil {
			return "", fmt.Errorf("exists predicate without link")
		}
		return b.exists(alias, *p.Link)
	}
	if len(p.Values) == 0 {
		return "", fmt.Errorf("predicate on %q has no value", p.Key)
	}

	expr := b.typed(alias, p.Key, p.Type)
	switch p.Op {
	case query.OpEqual:
		return expr + " = " + b.scalar(p.Type, p.Values[0]), nil
	case query.OpIEqual:
		return "lower(" + expr + ") = lower(" + b.arg(textValue(p.Values[0])) + ")", nil
	case query.OpIn:
		return b.set(expr, p.Type, p.Values, false), nil
	case query.OpIIn:
		return b.set("lower("+expr+")", p.Type, p.Values, true), nil
	case query.OpContains:
		return expr + " LIKE '%' || " + b.arg(escapeLike(textValue(p.Values[0]))) + " || '%'", nil
	case query.OpIContains:
		return expr + " ILIKE '%' || " + b.arg(escapeLike(textValue(p.Values[0]))) + " || '%'", nil
	case query.OpGT:
		return expr + " > " + b.scalar(p.Type, p.Values[0]), nil
	case query.OpGTE:
		return expr + " >= " + b.scalar(p.Type, p.Values[0]), nil
	case query.OpLT:
		return expr + " < " + b.scalar(p.Type, p.Values[0]), nil
	case query.OpLTE:
		return expr + " <= " + b.scalar(p.Type, p.Values[0]), nil
	}
	return "", fmt.Errorf("unsupported operator %q", p.Op)
}

func (b *sqlBuilder) scalar(ft models.FieldType, v any) string {
	switch ft {
	case models.FieldInt, models.FieldFloat:
		return b.arg(v) + "::float8"
	case models.FieldDate:
		return b.arg(v) + "::timestamptz"
	case models.FieldObject:
		return "CAST(" + b.arg(textValue(v)) + "::text AS jsonb)"
	default:
		return b.arg(textValue(v)) + "::text"
	}
}

func (b *sqlBuilder) set(expr string, ft models.FieldType, values []any, lower bool) string {
	switch ft {
	case models.FieldInt, models.FieldFloat:
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			if f, ok := v.(float64); ok {
				nums = append(nums, f)
			}
		}
		return expr + " = ANY(" + b.arg(nums) + "::float8[])"
	case models.FieldDate:
		times := make([]time.Time, 0, len(values))
		for _, v := range values {
			if t, ok := v.(time.Time); ok {
				times = append(times, t)
			}
		}
		return expr + " = ANY(" + b.arg(times) + "::timestamptz[])"
	case models.FieldObject:
		return expr + " = ANY(SELECT v::jsonb FROM unnest(" + b.arg(textValues(values, false)) + "::text[]) AS v)"
	default:
		return expr + " = ANY(" + b.arg(textValues(values, lower)) + "::text[])"
	}
}

// exists requires an entry of the linked table with a matching key.
func (b *sqlBuilder) exists(alias string, link query.Link) (string, error) {
	l := b.nextAlias()
	cond, err := b.linkCondition(alias, l, link)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM entries %s WHERE %s)", l, cond), nil
}

func (b *sqlBuilder) linkCondition(alias, l string, link query.Link) (string, error) {
	where, err := b.where(l, link.TableID, link.Predicates)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s AND %s = %s", where, b.attr(l, link.RemoteKey), b.attr(alias, link.LocalKey)), nil
}

// orderBy always ends with the id tiebreak.
func (b *sqlBuilder) orderBy(alias string, o *query.Order) (string, error) {
	tiebreak := alias + ".id ASC"
	if o == nil {
		return tiebreak, nil
	}

	var expr string
	if o.Link != nil {
		l := b.nextAlias()
		cond, err := b.linkCondition(alias, l, *o.Link)
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf("(SELECT %s FROM entries %s WHERE %s ORDER BY %s.id LIMIT 1)",
			b.orderValue(l, o), l, cond, l)
	} else {
		expr = b.orderValue(alias, o)
	}

	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s NULLS LAST, %s", expr, dir, tiebreak), nil
}

func (b *sqlBuilder) orderValue(alias string, o *query.Order) string {
	switch o.Type {
	case models.FieldInt, models.FieldFloat, models.FieldDate:
		return b.typed(alias, o.Key, o.Type)
	default:
		return fmt.Sprintf("%s.data->%s::text", alias, b.arg(o.Key))
	}
}

func (b *sqlBuilder) limit(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(limit))
	}
	if offset > 0 {
		sb.WriteString(" OFFSET " + b.arg(offset))
	}
	return sb.String()
}

const entryColumns = "e.id, e.table_id, e.created_at, e.data"

// selectEntries compiles q. When keyAttr is set the text form of that
// attribute is appended as the last column.
func selectEntries(q query.Query, keyAttr string) (string, []any, error) {
	b := &sqlBuilder{}
	cols := entryColumns
	if keyAttr != "" {
		cols += ", " + b.attr("e", keyAttr)
	}
	where, err := b.where("e", q.TableID, q.Predicates)
	if err != nil {
		return "", nil, err
	}
	order, err := b.orderBy("e", q.Order)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT " + cols + " FROM entries e WHERE " + where + " ORDER BY " + order + b.limit(q.Limit, q.Offset)
	return sql, b.args, nil
}

func countEntries(q query.Query) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.where("e", q.TableID, q.Predicates)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM entries e WHERE " + where, b.args, nil
}

// Aggregation describes a grouped aggregate over one table's entries.
type Aggregation struct {
	TableID    uuid.UUID
	Predicates []query.Predicate

	TimelineKey string
	Period      models.TimelinePeriod
	XKey        string
	YKey        string
	Func        models.AggregateFunc
}

// AggregateRow is one group. Bucket is nil without a timeline and X is nil
// when no x-axis is grouped or the entry has no value for it.
type AggregateRow struct {
	Bucket *time.Time
	X      *string
	Value  *float64
}

var sqlAggregates = map[models.AggregateFunc]string{
	models.AggSum:    "sum",
	models.AggMin:    "min",
	models.AggMax:    "max",
	models.AggAvg:    "avg",
	models.AggStdDev: "stddev_pop",
}

func aggregateEntries(a Aggregation) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.where("e", a.TableID, a.Predicates)
	if err != nil {
		return "", nil, err
	}

	bucket := "NULL::timestamp"
	x := "NULL::text"
	var groups []string
	if a.TimelineKey != "" {
		ts := b.typed("e", a.TimelineKey, models.FieldDate)
		bucket = fmt.Sprintf("date_trunc(%s::text, %s AT TIME ZONE 'UTC')", b.arg(string(a.Period)), ts)
		groups = append(groups, "1")
		where += " AND " + ts + " IS NOT NULL"
	}
	if a.XKey != "" {
		x = b.attr("e", a.XKey)
		groups = append(groups, "2")
	}

	var value string
	switch {
	case a.Func == models.AggCount && a.YKey == "":
		value = "count(*)"
	case a.Func == models.AggCount:
		value = fmt.Sprintf("count(e.data->%s::text)", b.arg(a.YKey))
	default:
		fn, ok := sqlAggregates[a.Func]
		if !ok {
			return "", nil, fmt.Errorf("unsupported aggregate %q", a.Func)
		}
		value = fn + "(" + b.typed("e", a.YKey, models.FieldFloat) + ")"
	}

	sql := fmt.Sprintf("SELECT %s, %s, %s::float8 FROM entries e WHERE %s", bucket, x, value, where)
	if len(groups) > 0 {
		sql += " GROUP BY " + strings.Join(groups, ", ") + " ORDER BY " + strings.Join(groups, ", ")
	}
	return sql, b.args, nil
}

func textValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}

func textValues(values []any, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s := textValue(v)
		if lower {
			s = strings.ToLower(s)
		}
		out = append(out, s)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
