package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
)

// Handlers groups every resource handler served under /api/v1.
type Handlers struct {
	Databases  *handlers.DatabaseHandler
	Tables     *handlers.TableHandler
	Entries    *handlers.EntryHandler
	Filters    *handlers.FilterHandler
	CsvImports *handlers.CsvImportHandler
	Charts     *handlers.ChartHandler
	Exports    *handlers.ExportHandler
}

func RegisterRoutes(router *gin.Engine, h Handlers, authenticate gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(authenticate)

	NewDatabaseRoutes(h.Databases).RegisterRoutes(api)
	NewTableRoutes(h.Tables, h.Entries, h.Exports).RegisterRoutes(api)
	NewFilterRoutes(h.Filters, h.Exports).RegisterRoutes(api)
	NewCsvImportRoutes(h.CsvImports, h.Exports).RegisterRoutes(api)
	NewChartRoutes(h.Charts).RegisterRoutes(api)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
