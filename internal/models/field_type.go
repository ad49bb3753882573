package models

// FieldType is the declared type of a TableColumn. It governs filter value
// coercion, CSV import coercion and aggregation eligibility.
type FieldType string

const (
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldText   FieldType = "text"
	FieldDate   FieldType = "date"
	FieldBool   FieldType = "bool"
	FieldObject FieldType = "object"
	FieldEnum   FieldType = "enum"
)

var fieldTypes = []FieldType{FieldInt, FieldFloat, FieldText, FieldDate, FieldBool, FieldObject, FieldEnum}

func (t FieldType) Valid() bool {
	for _, ft := range fieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

func (t FieldType) IsNumeric() bool {
	return t == FieldInt || t == FieldFloat
}
