package models

import (
	"time"

	"github.com/google/uuid"

	"tabula/internal/utils"
)

type Table struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	DatabaseID     uuid.UUID     `json:"database_id"`
	Active         bool          `json:"active"`
	OwnerID        uuid.UUID     `json:"owner_id"`
	CreatedAt      time.Time     `json:"date_created"`
	LastEditDate   *time.Time    `json:"last_edit_date,omitempty"`
	LastEditUserID *uuid.UUID    `json:"last_edit_user,omitempty"`
	Columns        []TableColumn `json:"fields,omitempty"`
}

// Prepare is called before every save. The slug always follows the latest
// name; it is not unique across tables.
func (t *Table) Prepare(editor uuid.UUID) {
	now := time.Now()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.OwnerID == uuid.Nil {
		t.OwnerID = editor
	}
	t.Slug = utils.Slugify(t.Name)
	t.LastEditDate = &now
	if editor != uuid.Nil {
		t.LastEditUserID = &editor
	}
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *TableColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnByID returns the column with the given id, or nil.
func (t *Table) ColumnByID(id uuid.UUID) *TableColumn {
	for i := range t.Columns {
		if t.Columns[i].ID == id {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

type TableSummary struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Active         bool       `json:"active"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Entries        int64      `json:"entries"`
	LastEditDate   *time.Time `json:"last_edit_date,omitempty"`
	LastEditUserID *uuid.UUID `json:"last_edit_user,omitempty"`
	Permissions    []string   `json:"user_permissions"`
}
