package query

import (
	"fmt"

	"tabula/internal/models"
)

func errUnknownOperator(suffix string) error {
	return fmt.Errorf("unknown operator %q", suffix)
}

func errInvalidOperator(op Operator, ft models.FieldType) error {
	return fmt.Errorf("operator %q is not supported on %s columns", op, ft)
}
