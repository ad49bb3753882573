package routes

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
)

type ChartRoutes struct {
	handler *handlers.ChartHandler
}

func NewChartRoutes(handler *handlers.ChartHandler) *ChartRoutes {
	return &ChartRoutes{handler: handler}
}

func (r *ChartRoutes) RegisterRoutes(router *gin.RouterGroup) {
	charts := router.Group("/charts")
	{
		charts.GET("", r.handler.ListCharts)
		charts.POST("", r.handler.CreateChart)
		charts.GET("/preview", r.handler.PreviewChart)
		charts.GET("/:id", r.handler.GetChart)
		charts.PUT("/:id", r.handler.UpdateChart)
		charts.DELETE("/:id", r.handler.DeleteChart)
		charts.GET("/:id/data", r.handler.ChartData)
	}
}
