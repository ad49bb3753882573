package models

import (
	"time"

	"github.com/google/uuid"
)

type CsvImport struct {
	ID           uuid.UUID        `json:"id"`
	TableID      *uuid.UUID       `json:"table,omitempty"`
	FileName     string           `json:"file"`
	FileContent  []byte           `json:"-"`
	Delimiter    string           `json:"delimiter"`
	Headers      []string         `json:"headers"`
	Errors       []CsvImportError `json:"errors"`
	ErrorsCount  int              `json:"errors_count"`
	ImportsCount int              `json:"imports_count"`
	OwnerID      uuid.UUID        `json:"owner_id"`
	CreatedAt    time.Time        `json:"date_created"`
}

// CsvImportError keeps the offending row verbatim, keyed by original header.
type CsvImportError struct {
	Row   map[string]string `json:"row"`
	Error string            `json:"error"`
}

func (c *CsvImport) Prepare(owner uuid.UUID) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.OwnerID == uuid.Nil {
		c.OwnerID = owner
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.Errors == nil {
		c.Errors = []CsvImportError{}
	}
}

// CsvFieldMap records how one source CSV column maps onto a table column.
type CsvFieldMap struct {
	ID           uuid.UUID  `json:"id"`
	CsvImportID  *uuid.UUID `json:"csv_import,omitempty"`
	TableID      *uuid.UUID `json:"table,omitempty"`
	OriginalName string     `json:"original_name"`
	DisplayName  string     `json:"display_name"`
	FieldName    string     `json:"field_name"`
	FieldType    FieldType  `json:"field_type"`
	FieldFormat  string     `json:"field_format"`
}

func (m *CsvFieldMap) Prepare() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.FieldName == "" {
		m.FieldName = m.OriginalName
	}
	if m.DisplayName == "" {
		m.DisplayName = m.FieldName
	}
	if m.FieldType == "" {
		m.FieldType = FieldText
	}
}
