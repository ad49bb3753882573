package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type EntryHandler struct {
	entryService *services.EntryService
}

func NewEntryHandler(entryService *services.EntryService) *EntryHandler {
	return &EntryHandler{
		entryService: entryService,
	}
}

// ListEntries handles GET /api/v1/tables/:id/entries. Every query parameter
// other than paging, __fields and __order narrows the entries.
func (h *EntryHandler) ListEntries(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	page, err := h.entryService.List(c.Request.Context(), user, tableID, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to retrieve entries")
		return
	}
	responses.Paginated(c, page.Page.Number, page.TotalPages(), page.Count, page.Results)
}

// GetEntry handles GET /api/v1/tables/:id/entries/:entry
func (h *EntryHandler) GetEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := entryParam(c)
	if !ok {
		return
	}

	entry, err := h.entryService.Get(c.Request.Context(), user, tableID, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve entry")
		return
	}
	responses.Success(c, http.StatusOK, entry, "Entry retrieved successfully")
}

// CreateEntry handles POST /api/v1/tables/:id/entries
func (h *EntryHandler) CreateEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	entry, err := h.entryService.Create(c.Request.Context(), user, tableID, data)
	if err != nil {
		responses.Error(c, err, "Failed to create entry")
		return
	}
	responses.Success(c, http.StatusCreated, entry, "Entry created successfully")
}

// UpdateEntry handles PUT /api/v1/tables/:id/entries/:entry
func (h *EntryHandler) UpdateEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := entryParam(c)
	if !ok {
		return
	}

	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	entry, err := h.entryService.Update(c.Request.Context(), user, tableID, id, data)
	if err != nil {
		responses.Error(c, err, "Failed to update entry")
		return
	}
	responses.Success(c, http.StatusOK, entry, "Entry updated successfully")
}

// DeleteEntry handles DELETE /api/v1/tables/:id/entries/:entry
func (h *EntryHandler) DeleteEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := entryParam(c)
	if !ok {
		return
	}

	if err := h.entryService.Delete(c.Request.Context(), user, tableID, id); err != nil {
		responses.Error(c, err, "Failed to delete entry")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Entry deleted successfully")
}
