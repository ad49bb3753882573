package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tabula/internal/models"
)

const schemaCacheTTL = 10 * time.Minute

// SchemaCache keeps each table's column list in Redis. A nil client turns
// every call into a miss.
type SchemaCache struct {
	rdb *redis.Client
}

func NewSchemaCache(rdb *redis.Client) *SchemaCache {
	return &SchemaCache{rdb: rdb}
}

func schemaKey(tableID uuid.UUID) string {
	return "schema:" + tableID.String()
}

func (c *SchemaCache) Columns(ctx context.Context, tableID uuid.UUID) ([]models.TableColumn, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, schemaKey(tableID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var columns []models.TableColumn
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil, false, err
	}
	return columns, true, nil
}

func (c *SchemaCache) StoreColumns(ctx context.Context, tableID uuid.UUID, columns []models.TableColumn) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(columns)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, schemaKey(tableID), raw, schemaCacheTTL).Err()
}

func (c *SchemaCache) Invalidate(ctx context.Context, tableID uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, schemaKey(tableID)).Err()
}
