package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type DatabaseHandler struct {
	databaseService *services.DatabaseService
}

func NewDatabaseHandler(databaseService *services.DatabaseService) *DatabaseHandler {
	return &DatabaseHandler{
		databaseService: databaseService,
	}
}

// CreateDatabase handles POST /api/v1/databases
func (h *DatabaseHandler) CreateDatabase(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.DatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	database, err := h.databaseService.Create(c.Request.Context(), user, req)
	if err != nil {
		responses.Error(c, err, "Failed to create database")
		return
	}
	responses.Success(c, http.StatusCreated, database, "Database created successfully")
}

// ListDatabases handles GET /api/v1/databases
func (h *DatabaseHandler) ListDatabases(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	databases, err := h.databaseService.List(c.Request.Context(), user)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve databases")
		return
	}
	responses.Success(c, http.StatusOK, databases, "Databases retrieved successfully")
}

// GetDatabase handles GET /api/v1/databases/:id
func (h *DatabaseHandler) GetDatabase(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	database, err := h.databaseService.Get(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve database")
		return
	}
	responses.Success(c, http.StatusOK, database, "Database retrieved successfully")
}

// UpdateDatabase handles PUT /api/v1/databases/:id
func (h *DatabaseHandler) UpdateDatabase(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.DatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	database, err := h.databaseService.Update(c.Request.Context(), user, id, req)
	if err != nil {
		responses.Error(c, err, "Failed to update database")
		return
	}
	responses.Success(c, http.StatusOK, database, "Database updated successfully")
}

// DeleteDatabase handles DELETE /api/v1/databases/:id
func (h *DatabaseHandler) DeleteDatabase(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.databaseService.Delete(c.Request.Context(), user, id); err != nil {
		responses.Error(c, err, "Failed to delete database")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Database deleted successfully")
}
