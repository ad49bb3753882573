package models

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a schemaless record of a Table. Data keys are expected to be column
// names but the store does not enforce it.
type Entry struct {
	ID        int64          `json:"id"`
	TableID   uuid.UUID      `json:"table"`
	CreatedAt time.Time      `json:"date_created"`
	Data      map[string]any `json:"data"`
}
