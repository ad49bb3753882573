package routes

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
)

type FilterRoutes struct {
	filterHandler *handlers.FilterHandler
	exportHandler *handlers.ExportHandler
}

func NewFilterRoutes(filterHandler *handlers.FilterHandler, exportHandler *handlers.ExportHandler) *FilterRoutes {
	return &FilterRoutes{
		filterHandler: filterHandler,
		exportHandler: exportHandler,
	}
}

func (r *FilterRoutes) RegisterRoutes(router *gin.RouterGroup) {
	filters := router.Group("/filters")
	{
		filters.GET("", r.filterHandler.ListFilters)
		filters.POST("", r.filterHandler.CreateFilter)
		filters.GET("/:id", r.filterHandler.GetFilter)
		filters.PUT("/:id", r.filterHandler.UpdateFilter)
		filters.DELETE("/:id", r.filterHandler.DeleteFilter)
		filters.GET("/:id/entries", r.filterHandler.FilterEntries)
		filters.GET("/:id/csv-export", r.exportHandler.ExportFilter)
	}
}
