package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabula/internal/errs"
	"tabula/internal/models"
)

// Catalog loads tables together with their columns and checks access to
// them. Column lists go through the cache when one is configured.
type Catalog struct {
	tables  TableStore
	columns ColumnStore
	cache   ColumnCache
	auth    Authorizer
	logger  *zap.Logger
}

func NewCatalog(tables TableStore, columns ColumnStore, cache ColumnCache, auth Authorizer, logger *zap.Logger) *Catalog {
	return &Catalog{
		tables:  tables,
		columns: columns,
		cache:   cache,
		auth:    auth,
		logger:  logger,
	}
}

// Table returns the table with its columns or an ErrNotFound error.
func (c *Catalog) Table(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	t, err := c.tables.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	if t == nil {
		return nil, errs.NotFound("table")
	}

	t.Columns, err = c.tableColumns(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TableFor is Table plus a permission check for user.
func (c *Catalog) TableFor(ctx context.Context, user User, action Action, id uuid.UUID) (*models.Table, error) {
	t, err := c.Table(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.auth.Can(user, action, t) {
		return nil, errs.ErrForbidden
	}
	return t, nil
}

func (c *Catalog) Can(user User, action Action, t *models.Table) bool {
	return c.auth.Can(user, action, t)
}

func (c *Catalog) tableColumns(ctx context.Context, id uuid.UUID) ([]models.TableColumn, error) {
	if c.cache != nil {
		cols, ok, err := c.cache.Columns(ctx, id)
		if err != nil {
			c.logger.Warn("Schema cache read failed", zap.String("table_id", id.String()), zap.Error(err))
		} else if ok {
			return cols, nil
		}
	}

	cols, err := c.columns.ListByTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.StoreColumns(ctx, id, cols); err != nil {
			c.logger.Warn("Schema cache write failed", zap.String("table_id", id.String()), zap.Error(err))
		}
	}
	return cols, nil
}

func (c *Catalog) invalidate(ctx context.Context, tableID uuid.UUID) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, tableID); err != nil {
		c.logger.Warn("Schema cache invalidation failed", zap.String("table_id", tableID.String()), zap.Error(err))
	}
}

// columnsChanged drops the cached column list and records the edit.
func (c *Catalog) columnsChanged(ctx context.Context, tableID, editor uuid.UUID) {
	c.invalidate(ctx, tableID)
	if err := c.tables.Touch(ctx, tableID, editor); err != nil {
		c.logger.Warn("Failed to record table edit", zap.String("table_id", tableID.String()), zap.Error(err))
	}
}
