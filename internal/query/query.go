// Package query turns raw request parameters into typed predicates over entry
// attribute maps. Storage engines compile a Query into their own dialect.
package query

import (
	"github.com/google/uuid"

	"tabula/internal/models"
)

type Operator string

const (
	OpEqual     Operator = "exact"
	OpIEqual    Operator = "iexact"
	OpIn        Operator = "in"
	OpIIn       Operator = "iin"
	OpContains  Operator = "contains"
	OpIContains Operator = "icontains"
	OpGT        Operator = "gt"
	OpGTE       Operator = "gte"
	OpLT        Operator = "lt"
	OpLTE       Operator = "lte"
	// OpExists requires a linked entry in another table; see Link.
	OpExists Operator = "exists"
)

// IsSet reports whether the operator tests membership in Values.
func (o Operator) IsSet() bool {
	return o == OpIn || o == OpIIn
}

// Predicate is one condition on an entry attribute. Scalar operators use
// Values[0]; set operators use all of Values.
type Predicate struct {
	Key    string
	Type   models.FieldType
	Op     Operator
	Values []any
	Link   *Link
}

// Link ties an entry to entries of another table whose RemoteKey attribute
// equals the entry's LocalKey attribute (compared as text). Predicates apply
// to the linked entries.
type Link struct {
	TableID    uuid.UUID
	LocalKey   string
	RemoteKey  string
	Predicates []Predicate
}

// Order sorts by one attribute. When Link is set the attribute is read from
// the earliest linked entry.
type Order struct {
	Key  string
	Type models.FieldType
	Desc bool
	Link *Link
}

// Query selects entries of one table. Results are always tie-broken by id.
type Query struct {
	TableID    uuid.UUID
	Predicates []Predicate
	Order      *Order
	Limit      int
	Offset     int
}

// KeyedEntry is an entry together with the text form of one of its attributes,
// as the store renders it. Join keys are matched on this form.
type KeyedEntry struct {
	models.Entry
	Key *string
}

func Exists(link Link) Predicate {
	return Predicate{Op: OpExists, Link: &link}
}

// KeyIn matches entries whose attribute, rendered as text, is one of values.
func KeyIn(key string, values []string) Predicate {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Predicate{Key: key, Type: models.FieldText, Op: OpIn, Values: vals}
}
