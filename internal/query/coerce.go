package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tabula/internal/models"
)

const dateOnlyLayout = "2006-01-02"

var defaultDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	dateOnlyLayout,
}

var (
	errNotNumber  = errors.New("not a number")
	errNotInteger = errors.New("not an integer")
	errNotBool    = errors.New("not a boolean")
	errNotDate    = errors.New("not a date")
	errNotJSON    = errors.New("not valid JSON")
)

// ParseBool accepts the usual truthy and falsy tokens, case-insensitively.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "on", "da":
		return true, nil
	case "false", "0", "no", "n", "off", "nu":
		return false, nil
	}
	return false, errNotBool
}

// ParseDate parses raw with layout, or with the default layouts when layout
// is empty. Layouts containing '%' are read as strftime patterns.
func ParseDate(raw, layout string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	layouts := defaultDateLayouts
	if layout != "" {
		layouts = []string{StrftimeToLayout(layout)}
	}
	for _, l := range layouts {
		t, err := time.Parse(l, raw)
		if err == nil {
			return t.UTC(), !hasClock(l), nil
		}
	}
	return time.Time{}, false, errNotDate
}

// hasClock reports whether a Go layout carries an hour or minute.
func hasClock(layout string) bool {
	return strings.Contains(layout, "15") || strings.Contains(layout, "03") || strings.Contains(layout, "04")
}

var strftimeTokens = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'e': "_2",
	'H': "15", 'I': "03", 'M': "04", 'S': "05", 'p': "PM",
	'b': "Jan", 'B': "January", 'a': "Mon", 'A': "Monday",
	'z': "-0700", 'Z': "MST", 'f': "000000", '%': "%",
}

// StrftimeToLayout converts "%d.%m.%Y" style patterns into Go layouts.
// Anything without '%' is returned unchanged.
func StrftimeToLayout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if tok, ok := strftimeTokens[format[i+1]]; ok {
				b.WriteString(tok)
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}

// FilterValue coerces a raw filter string for a column of type ft.
func FilterValue(ft models.FieldType, raw string) (any, error) {
	switch ft {
	case models.FieldInt, models.FieldFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNotNumber
		}
		return f, nil
	case models.FieldBool:
		return ParseBool(raw)
	case models.FieldDate:
		t, _, err := ParseDate(raw, "")
		return t, err
	case models.FieldObject:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, errNotJSON
		}
		canonical, _ := json.Marshal(v)
		return string(canonical), nil
	default:
		return raw, nil
	}
}

// StoredValue coerces a raw cell into the value kept in an entry attribute map.
// Dates are normalised to RFC3339 in UTC, or to 2006-01-02 for date-only input.
func StoredValue(col models.TableColumn, raw, format string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch col.FieldType {
	case models.FieldInt:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errNotInteger
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, errNotInteger
		}
		return int64(f), nil
	case models.FieldFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNotNumber
		}
		return f, nil
	case models.FieldBool:
		return ParseBool(raw)
	case models.FieldDate:
		t, dateOnly, err := ParseDate(raw, format)
		if err != nil {
			return nil, err
		}
		if dateOnly {
			return t.Format(dateOnlyLayout), nil
		}
		return t.Format(time.RFC3339), nil
	case models.FieldObject:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, errNotJSON
		}
		return v, nil
	case models.FieldEnum:
		return enumValue(col, raw)
	default:
		return raw, nil
	}
}

// StoredFromJSON coerces a value decoded from a JSON request body.
func StoredFromJSON(col models.TableColumn, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		if col.FieldType == models.FieldObject {
			return val, nil
		}
		return StoredValue(col, val, "")
	case float64:
		switch col.FieldType {
		case models.FieldInt:
			if val != math.Trunc(val) {
				return nil, errNotInteger
			}
			return int64(val), nil
		case models.FieldFloat, models.FieldObject:
			return val, nil
		case models.FieldText, models.FieldEnum:
			return StoredValue(col, strconv.FormatFloat(val, 'f', -1, 64), "")
		}
	case bool:
		switch col.FieldType {
		case models.FieldBool, models.FieldObject:
			return val, nil
		case models.FieldText:
			return strconv.FormatBool(val), nil
		}
	case map[string]any, []any:
		if col.FieldType == models.FieldObject {
			return val, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T in a %s column", v, col.FieldType)
}

func enumValue(col models.TableColumn, raw string) (any, error) {
	if len(col.Choices) == 0 {
		return raw, nil
	}
	for _, choice := range col.Choices {
		if choice == raw {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(col.Choices, ", "))
}
