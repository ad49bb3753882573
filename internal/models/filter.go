package models

import (
	"time"

	"github.com/google/uuid"

	"tabula/internal/utils"
)

// Filter is a saved join between a primary table and one or more join tables.
type Filter struct {
	ID                  uuid.UUID         `json:"id"`
	Name                string            `json:"name"`
	Slug                string            `json:"slug"`
	PrimaryTableID      uuid.UUID         `json:"primary_table"`
	PrimaryJoinColumnID uuid.UUID         `json:"join_field"`
	PrimaryFieldIDs     []uuid.UUID       `json:"primary_table_fields"`
	Joins               []FilterJoinTable `json:"join_tables"`
	OwnerID             uuid.UUID         `json:"owner_id"`
	CreatedAt           time.Time         `json:"creation_date"`
	LastEditDate        *time.Time        `json:"last_edit_date,omitempty"`
	LastEditUserID      *uuid.UUID        `json:"last_edit_user,omitempty"`
}

type FilterJoinTable struct {
	ID           uuid.UUID   `json:"id"`
	FilterID     uuid.UUID   `json:"filter"`
	TableID      uuid.UUID   `json:"table"`
	JoinColumnID uuid.UUID   `json:"join_field"`
	FieldIDs     []uuid.UUID `json:"fields"`
	Position     int         `json:"position"`
}

func (f *Filter) Prepare(editor uuid.UUID) {
	now := time.Now()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.OwnerID == uuid.Nil {
		f.OwnerID = editor
	}
	f.Slug = utils.Slugify(f.Name)
	f.LastEditDate = &now
	if editor != uuid.Nil {
		f.LastEditUserID = &editor
	}
	for i := range f.Joins {
		if f.Joins[i].ID == uuid.Nil {
			f.Joins[i].ID = uuid.New()
		}
		f.Joins[i].FilterID = f.ID
		f.Joins[i].Position = i
	}
}

// TableIDs returns the primary table followed by every join table.
func (f *Filter) TableIDs() []uuid.UUID {
	ids := []uuid.UUID{f.PrimaryTableID}
	for _, j := range f.Joins {
		ids = append(ids, j.TableID)
	}
	return ids
}
