package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tabula/internal/errs"
	"tabula/internal/models"
	"tabula/internal/utils"
)

type DatabaseService struct {
	databases DatabaseStore
	tables    TableStore
	catalog   *Catalog
}

func NewDatabaseService(databases DatabaseStore, tables TableStore, catalog *Catalog) *DatabaseService {
	return &DatabaseService{
		databases: databases,
		tables:    tables,
		catalog:   catalog,
	}
}

type DatabaseRequest struct {
	Name string `json:"name" binding:"required"`
}

// DatabaseDetail splits a database's visible tables by their active flag.
type DatabaseDetail struct {
	models.Database
	ActiveTables   []models.TableSummary `json:"active_tables"`
	ArchivedTables []models.TableSummary `json:"archived_tables"`
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.Validation("name", "this field is required")
	}
	if utils.Slugify(name) == "" {
		return "", errs.Validation("name", "must contain at least one letter or digit")
	}
	return name, nil
}

func (s *DatabaseService) Create(ctx context.Context, user User, req DatabaseRequest) (*models.Database, error) {
	if !user.IsAdmin() {
		return nil, errs.ErrForbidden
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}

	d := &models.Database{Name: name}
	if err := s.databases.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save database: %w", err)
	}
	return d, nil
}

func (s *DatabaseService) List(ctx context.Context, user User) ([]DatabaseDetail, error) {
	databases, err := s.databases.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	details := make([]DatabaseDetail, 0, len(databases))
	for _, d := range databases {
		detail, err := s.detail(ctx, user, d)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (s *DatabaseService) Get(ctx context.Context, user User, id uuid.UUID) (*DatabaseDetail, error) {
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, user, *d)
}

func (s *DatabaseService) Update(ctx context.Context, user User, id uuid.UUID, req DatabaseRequest) (*models.Database, error) {
	if !user.IsAdmin() {
		return nil, errs.ErrForbidden
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}

	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name = name
	found, err := s.databases.Update(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to update database: %w", err)
	}
	if !found {
		return nil, errs.NotFound("database")
	}
	return d, nil
}

// Delete removes a database with all of its tables. Only admins may do it.
func (s *DatabaseService) Delete(ctx context.Context, user User, id uuid.UUID) error {
	if !user.IsAdmin() {
		return errs.ErrForbidden
	}
	found, err := s.databases.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	if !found {
		return errs.NotFound("database")
	}
	return nil
}

func (s *DatabaseService) get(ctx context.Context, id uuid.UUID) (*models.Database, error) {
	d, err := s.databases.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load database: %w", err)
	}
	if d == nil {
		return nil, errs.NotFound("database")
	}
	return d, nil
}

func (s *DatabaseService) detail(ctx context.Context, user User, d models.Database) (*DatabaseDetail, error) {
	tables, err := s.tables.ListByDatabase(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	visible := make([]models.Table, 0, len(tables))
	ids := make([]uuid.UUID, 0, len(tables))
	for _, t := range tables {
		if s.catalog.Can(user, ActionView, &t) {
			visible = append(visible, t)
			ids = append(ids, t.ID)
		}
	}

	counts, err := s.tables.CountEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	detail := &DatabaseDetail{
		Database:       d,
		ActiveTables:   []models.TableSummary{},
		ArchivedTables: []models.TableSummary{},
	}
	for i := range visible {
		t := &visible[i]
		summary := models.TableSummary{
			ID:             t.ID,
			Name:           t.Name,
			Slug:           t.Slug,
			Active:         t.Active,
			OwnerID:        t.OwnerID,
			Entries:        counts[t.ID],
			LastEditDate:   t.LastEditDate,
			LastEditUserID: t.LastEditUserID,
			Permissions:    Permissions(s.catalog.auth, user, t),
		}
		if t.Active {
			detail.ActiveTables = append(detail.ActiveTables, summary)
		} else {
			detail.ArchivedTables = append(detail.ArchivedTables, summary)
		}
	}
	return detail, nil
}
