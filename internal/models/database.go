package models

import (
	"time"

	"github.com/google/uuid"

	"tabula/internal/utils"
)

type Database struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Prepare assigns an id on first save and re-derives the slug from the
// current name on every save.
func (d *Database) Prepare() {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.Slug = utils.Slugify(d.Name)
}
