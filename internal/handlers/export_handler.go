package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type ExportHandler struct {
	exportService *services.ExportService
	logger        *zap.Logger
}

func NewExportHandler(exportService *services.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// ExportTable handles GET /api/v1/tables/:id/csv-export. The same filters as the
// entry list apply.
func (h *ExportHandler) ExportTable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	file, err := h.exportService.ExportTable(c.Request.Context(), user, id, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to export table")
		return
	}
	h.send(c, file)
}

// ExportFilter handles GET /api/v1/filters/:id/csv-export
func (h *ExportHandler) ExportFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	file, err := h.exportService.ExportFilter(c.Request.Context(), user, id, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to export filter")
		return
	}
	h.send(c, file)
}

// ExportErrors handles GET /api/v1/csv-imports/:id/export-errors
func (h *ExportHandler) ExportErrors(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	file, err := h.exportService.ExportErrors(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to export import errors")
		return
	}
	h.send(c, file)
}

// send streams the file as an attachment and removes it afterwards.
func (h *ExportHandler) send(c *gin.Context, file *services.ExportFile) {
	defer func() {
		if err := file.Remove(); err != nil {
			h.logger.Warn("Failed to remove export file", zap.String("path", file.Path), zap.Error(err))
		}
	}()

	c.Header("Content-Type", services.ExportContentType)
	c.FileAttachment(file.Path, file.Name)
}
