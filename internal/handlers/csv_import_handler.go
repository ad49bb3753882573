package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type CsvImportHandler struct {
	csvService *services.CsvService
}

func NewCsvImportHandler(csvService *services.CsvService) *CsvImportHandler {
	return &CsvImportHandler{
		csvService: csvService,
	}
}

// PreviewImport handles POST /api/v1/csv-imports. The returned field maps
// are edited by the client and sent back with POST /api/v1/tables.
func (h *CsvImportHandler) PreviewImport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	upload, ok := readUpload(c)
	if !ok {
		return
	}

	preview, err := h.csvService.Preview(c.Request.Context(), user, upload)
	if err != nil {
		responses.Error(c, err, "Failed to read csv file")
		return
	}
	responses.Success(c, http.StatusCreated, preview, "CSV file uploaded")
}

// ListImports handles GET /api/v1/csv-imports
func (h *CsvImportHandler) ListImports(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	imports, err := h.csvService.List(c.Request.Context(), user)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve csv imports")
		return
	}
	responses.Success(c, http.StatusOK, imports, "CSV imports retrieved successfully")
}

// GetImport handles GET /api/v1/csv-imports/:id
func (h *CsvImportHandler) GetImport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	imp, err := h.csvService.Get(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve csv import")
		return
	}
	responses.Success(c, http.StatusOK, imp, "CSV import retrieved successfully")
}
