package routes

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
)

type TableRoutes struct {
	tableHandler  *handlers.TableHandler
	entryHandler  *handlers.EntryHandler
	exportHandler *handlers.ExportHandler
}

func NewTableRoutes(tableHandler *handlers.TableHandler, entryHandler *handlers.EntryHandler, exportHandler *handlers.ExportHandler) *TableRoutes {
	return &TableRoutes{
		tableHandler:  tableHandler,
		entryHandler:  entryHandler,
		exportHandler: exportHandler,
	}
}

func (r *TableRoutes) RegisterRoutes(router *gin.RouterGroup) {
	tables := router.Group("/tables")
	{
		tables.GET("", r.tableHandler.ListTables)
		tables.POST("", r.tableHandler.CreateTable)
		tables.POST("/from-filter", r.tableHandler.FromFilter)
		tables.GET("/:id", r.tableHandler.GetTable)
		tables.PUT("/:id", r.tableHandler.UpdateTable)
		tables.DELETE("/:id", r.tableHandler.DeleteTable)

		tables.POST("/:id/columns", r.tableHandler.AddColumn)
		tables.PUT("/:id/columns/:column", r.tableHandler.UpdateColumn)
		tables.DELETE("/:id/columns/:column", r.tableHandler.DeleteColumn)

		tables.POST("/:id/csv-manual-import", r.tableHandler.ManualImport)
		tables.PUT("/:id/csv-manual-import", r.tableHandler.ManualImport)
		tables.GET("/:id/csv-export", r.exportHandler.ExportTable)

		tables.GET("/:id/entries", r.entryHandler.ListEntries)
		tables.POST("/:id/entries", r.entryHandler.CreateEntry)
		tables.GET("/:id/entries/:entry", r.entryHandler.GetEntry)
		tables.PUT("/:id/entries/:entry", r.entryHandler.UpdateEntry)
		tables.DELETE("/:id/entries/:entry", r.entryHandler.DeleteEntry)
	}
}
