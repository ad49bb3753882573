package routes

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
)

type CsvImportRoutes struct {
	importHandler *handlers.CsvImportHandler
	exportHandler *handlers.ExportHandler
}

func NewCsvImportRoutes(importHandler *handlers.CsvImportHandler, exportHandler *handlers.ExportHandler) *CsvImportRoutes {
	return &CsvImportRoutes{
		importHandler: importHandler,
		exportHandler: exportHandler,
	}
}

func (r *CsvImportRoutes) RegisterRoutes(router *gin.RouterGroup) {
	imports := router.Group("/csv-imports")
	{
		imports.POST("", r.importHandler.PreviewImport)
		imports.GET("", r.importHandler.ListImports)
		imports.GET("/:id", r.importHandler.GetImport)
		imports.GET("/:id/export-errors", r.exportHandler.ExportErrors)
	}
}
