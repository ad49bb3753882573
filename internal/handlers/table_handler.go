package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type TableHandler struct {
	tableService  *services.TableService
	csvService    *services.CsvService
	filterService *services.FilterService
}

func NewTableHandler(tableService *services.TableService, csvService *services.CsvService, filterService *services.FilterService) *TableHandler {
	return &TableHandler{
		tableService:  tableService,
		csvService:    csvService,
		filterService: filterService,
	}
}

// CreateTable handles POST /api/v1/tables. A request carrying import_id
// finishes a CSV import instead of creating an empty table.
func (h *TableHandler) CreateTable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if req.ImportID != nil {
		result, err := h.csvService.CreateTable(c.Request.Context(), user, req)
		if err != nil {
			responses.Error(c, err, "Failed to import csv file")
			return
		}
		responses.Success(c, http.StatusCreated, result, "Table created from csv import")
		return
	}

	table, err := h.tableService.Create(c.Request.Context(), user, req)
	if err != nil {
		responses.Error(c, err, "Failed to create table")
		return
	}
	responses.Success(c, http.StatusCreated, table, "Table created successfully")
}

// ListTables handles GET /api/v1/tables?database=<id>
func (h *TableHandler) ListTables(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	databaseID, ok := optionalUUID(c, "database")
	if !ok {
		return
	}
	if databaseID == nil {
		responses.Fail(c, http.StatusBadRequest, nil, "The database query parameter is required")
		return
	}

	tables, err := h.tableService.List(c.Request.Context(), user, *databaseID)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve tables")
		return
	}
	responses.Success(c, http.StatusOK, tables, "Tables retrieved successfully")
}

// GetTable handles GET /api/v1/tables/:id
func (h *TableHandler) GetTable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	table, err := h.tableService.Get(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve table")
		return
	}
	responses.Success(c, http.StatusOK, table, "Table retrieved successfully")
}

// UpdateTable handles PUT /api/v1/tables/:id
func (h *TableHandler) UpdateTable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	table, err := h.tableService.Update(c.Request.Context(), user, id, req)
	if err != nil {
		responses.Error(c, err, "Failed to update table")
		return
	}
	responses.Success(c, http.StatusOK, table, "Table updated successfully")
}

// DeleteTable handles DELETE /api/v1/tables/:id
func (h *TableHandler) DeleteTable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.tableService.Delete(c.Request.Context(), user, id); err != nil {
		responses.Error(c, err, "Failed to delete table")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Table deleted successfully")
}

// AddColumn handles POST /api/v1/tables/:id/columns
func (h *TableHandler) AddColumn(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.ColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	column, err := h.tableService.AddColumn(c.Request.Context(), user, id, req)
	if err != nil {
		responses.Error(c, err, "Failed to add column")
		return
	}
	responses.Success(c, http.StatusCreated, column, "Column added successfully")
}

// UpdateColumn handles PUT /api/v1/tables/:id/columns/:column
func (h *TableHandler) UpdateColumn(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	columnID, ok := uuidParam(c, "column")
	if !ok {
		return
	}

	var req services.ColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	column, err := h.tableService.UpdateColumn(c.Request.Context(), user, id, columnID, req)
	if err != nil {
		responses.Error(c, err, "Failed to update column")
		return
	}
	responses.Success(c, http.StatusOK, column, "Column updated successfully")
}

// DeleteColumn handles DELETE /api/v1/tables/:id/columns/:column
func (h *TableHandler) DeleteColumn(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	columnID, ok := uuidParam(c, "column")
	if !ok {
		return
	}

	if err := h.tableService.DeleteColumn(c.Request.Context(), user, id, columnID); err != nil {
		responses.Error(c, err, "Failed to delete column")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Column deleted successfully")
}

// ManualImport handles POST|PUT /api/v1/tables/:id/csv-manual-import
func (h *TableHandler) ManualImport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	upload, ok := readUpload(c)
	if !ok {
		return
	}

	imp, err := h.csvService.ManualImport(c.Request.Context(), user, id, upload)
	if err != nil {
		responses.Error(c, err, "Failed to import csv file")
		return
	}
	responses.Success(c, http.StatusOK, imp, "CSV file imported")
}

// FromFilter handles POST /api/v1/tables/from-filter
func (h *TableHandler) FromFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.MaterializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	table, err := h.filterService.Materialize(c.Request.Context(), user, req)
	if err != nil {
		responses.Error(c, err, "Failed to create table from filter")
		return
	}
	responses.Success(c, http.StatusCreated, table, "Table created from filter")
}
