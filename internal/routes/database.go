package routes

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/handlers"
	"tabula/internal/middlewares"
)

type DatabaseRoutes struct {
	handler *handlers.DatabaseHandler
}

func NewDatabaseRoutes(handler *handlers.DatabaseHandler) *DatabaseRoutes {
	return &DatabaseRoutes{handler: handler}
}

func (r *DatabaseRoutes) RegisterRoutes(router *gin.RouterGroup) {
	databases := router.Group("/databases")
	{
		databases.GET("", r.handler.ListDatabases)
		databases.GET("/:id", r.handler.GetDatabase)

		// Admin only
		databases.POST("", middlewares.RequireAdmin, r.handler.CreateDatabase)
		databases.PUT("/:id", middlewares.RequireAdmin, r.handler.UpdateDatabase)
		databases.DELETE("/:id", middlewares.RequireAdmin, r.handler.DeleteDatabase)
	}
}
