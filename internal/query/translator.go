package query

import (
	"net/url"
	"sort"
	"strings"

	"tabula/internal/errs"
	"tabula/internal/models"
)

const (
	ParamFields  = "__fields"
	ParamOrder   = "__order"
	ParamPage    = "page"
	ParamPerPage = "perPage"

	// AllFields selects every known column.
	AllFields = "ALL"
)

var reserved = map[string]bool{ParamFields: true, ParamOrder: true, ParamPage: true, ParamPerPage: true}

// TextMatch selects how text values given without an operator suffix compare.
type TextMatch int

const (
	MatchInsensitive TextMatch = iota
	MatchExact
)

// Field is one column a request may reference. Key is the parameter name
// ("amount", or "orders__amount" on a join), Source the attribute key in the
// entry data. Group says which table of a join the field belongs to.
type Field struct {
	Key    string
	Source string
	Type   models.FieldType
	Group  int
}

// Condition is a translated predicate together with the field it targets.
type Condition struct {
	Field     Field
	Predicate Predicate
}

type Translator struct {
	Fields []Field
	Match  TextMatch
}

// ForTable builds a translator over one table's columns.
func ForTable(t *models.Table, match TextMatch) *Translator {
	fields := make([]Field, 0, len(t.Columns))
	for _, c := range t.Columns {
		fields = append(fields, Field{Key: c.Name, Source: c.Name, Type: c.FieldType})
	}
	return &Translator{Fields: fields, Match: match}
}

// Translate converts raw request parameters into conditions. Parameters that
// name no known field are ignored.
func (t *Translator) Translate(params url.Values) ([]Condition, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []Condition
	for _, key := range keys {
		if reserved[key] {
			continue
		}
		field, suffix, ok := t.resolve(key)
		if !ok {
			continue
		}
		pred, err := t.predicate(key, field, suffix, params.Get(key))
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Field: field, Predicate: pred})
	}
	return conds, nil
}

// resolve finds the longest field key that equals key or prefixes it followed
// by "__". The remainder is the operator suffix.
func (t *Translator) resolve(key string) (Field, string, bool) {
	var best Field
	found := false
	for _, f := range t.Fields {
		if found && len(f.Key) <= len(best.Key) {
			continue
		}
		if key == f.Key || strings.HasPrefix(key, f.Key+"__") {
			best, found = f, true
		}
	}
	if !found {
		return Field{}, "", false
	}
	return best, strings.TrimPrefix(key[len(best.Key):], "__"), true
}

func (t *Translator) predicate(key string, f Field, suffix, raw string) (Predicate, error) {
	op, err := t.operator(f, suffix)
	if err != nil {
		return Predicate{}, errs.Validation(key, "%v", err)
	}

	parts := []string{raw}
	if strings.Contains(raw, ",") || op.IsSet() {
		if op != OpEqual && op != OpIEqual && !op.IsSet() {
			return Predicate{}, errs.Validation(key, "comma separated values form a list, which operator %q does not accept", op)
		}
		parts = splitList(raw)
		if len(parts) == 0 {
			return Predicate{}, errs.Validation(key, "empty list")
		}
		if op == OpIEqual || op == OpIIn {
			op = OpIIn
		} else {
			op = OpIn
		}
	}

	pred := Predicate{Key: f.Source, Type: f.Type, Op: op, Values: make([]any, 0, len(parts))}
	for _, p := range parts {
		v, err := FilterValue(f.Type, p)
		if err != nil {
			return Predicate{}, errs.Validation(key, "%q is %v", p, err)
		}
		pred.Values = append(pred.Values, v)
	}
	return pred, nil
}

func (t *Translator) operator(f Field, suffix string) (Operator, error) {
	text := f.Type == models.FieldText || f.Type == models.FieldEnum
	op := Operator(suffix)
	switch op {
	case "":
		if text && t.Match == MatchInsensitive {
			return OpIEqual, nil
		}
		return OpEqual, nil
	case OpEqual, OpIn:
		return op, nil
	case OpIEqual, OpIIn:
		if !text {
			return op.sensitive(), nil
		}
		return op, nil
	case OpContains, OpIContains:
		if !text {
			return "", errInvalidOperator(op, f.Type)
		}
		return op, nil
	case OpGT, OpGTE, OpLT, OpLTE:
		if f.Type == models.FieldBool || f.Type == models.FieldObject {
			return "", errInvalidOperator(op, f.Type)
		}
		return op, nil
	}
	return "", errUnknownOperator(suffix)
}

func (o Operator) sensitive() Operator {
	switch o {
	case OpIEqual:
		return OpEqual
	case OpIIn:
		return OpIn
	case OpIContains:
		return OpContains
	}
	return o
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SelectFields resolves a "__fields" value. Empty or ALL selects every field;
// unknown names are dropped.
func (t *Translator) SelectFields(raw string) []Field {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == AllFields {
		return t.Fields
	}
	var out []Field
	seen := map[string]bool{}
	for _, name := range splitList(raw) {
		if seen[name] {
			continue
		}
		for _, f := range t.Fields {
			if f.Key == name {
				out = append(out, f)
				seen[name] = true
				break
			}
		}
	}
	if len(out) == 0 {
		return t.Fields
	}
	return out
}

// FieldOrder is a resolved "__order" value.
type FieldOrder struct {
	Field Field
	Desc  bool
}

// Order resolves an "__order" value against the selected fields. It
// returns nil when the column is not selected; callers then order by id.
func (t *Translator) Order(raw string, selected []Field) *FieldOrder {
	raw = strings.TrimSpace(raw)
	desc := strings.HasPrefix(raw, "-")
	name := strings.TrimPrefix(raw, "-")
	if name == "" {
		return nil
	}
	for _, f := range selected {
		if f.Key == name {
			return &FieldOrder{Field: f, Desc: desc}
		}
	}
	return nil
}

// StoreOrder converts the resolved order into a single-table store order.
func (o *FieldOrder) StoreOrder() *Order {
	if o == nil {
		return nil
	}
	return &Order{Key: o.Field.Source, Type: o.Field.Type, Desc: o.Desc}
}

// ByGroup buckets the predicates of conds by their field group.
func ByGroup(conds []Condition) map[int][]Predicate {
	out := make(map[int][]Predicate)
	for _, c := range conds {
		out[c.Field.Group] = append(out[c.Field.Group], c.Predicate)
	}
	return out
}

// Predicates drops the field information from conds.
func Predicates(conds []Condition) []Predicate {
	out := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Predicate)
	}
	return out
}

// Keys returns the parameter keys of fields.
func Keys(fields []Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Key)
	}
	return out
}
