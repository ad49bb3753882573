package models

import (
	"github.com/google/uuid"

	"tabula/internal/utils"
)

// TableColumn is one typed attribute declared on a Table. (TableID, Slug) is unique.
type TableColumn struct {
	ID          uuid.UUID `json:"id"`
	TableID     uuid.UUID `json:"table_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Slug        string    `json:"slug"`
	FieldType   FieldType `json:"field_type"`
	Choices     []string  `json:"choices,omitempty"`
	Position    int64     `json:"-"`
}

func (c *TableColumn) Prepare() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DisplayName == "" {
		c.DisplayName = c.Name
	}
	if c.FieldType == "" {
		c.FieldType = FieldText
	}
	c.Slug = utils.Slugify(c.Name)
}
