package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/responses"
	"tabula/internal/services"
)

type FilterHandler struct {
	filterService *services.FilterService
}

func NewFilterHandler(filterService *services.FilterService) *FilterHandler {
	return &FilterHandler{
		filterService: filterService,
	}
}

// CreateFilter handles POST /api/v1/filters
func (h *FilterHandler) CreateFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	filter, err := h.filterService.Create(c.Request.Context(), user, req)
	if err != nil {
		responses.Error(c, err, "Failed to create filter")
		return
	}
	responses.Success(c, http.StatusCreated, filter, "Filter created successfully")
}

// ListFilters handles GET /api/v1/filters
func (h *FilterHandler) ListFilters(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filters, err := h.filterService.List(c.Request.Context(), user)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve filters")
		return
	}
	responses.Success(c, http.StatusOK, filters, "Filters retrieved successfully")
}

// GetFilter handles GET /api/v1/filters/:id
func (h *FilterHandler) GetFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	filter, err := h.filterService.Get(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve filter")
		return
	}
	responses.Success(c, http.StatusOK, filter, "Filter retrieved successfully")
}

// UpdateFilter handles PUT /api/v1/filters/:id
func (h *FilterHandler) UpdateFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	filter, err := h.filterService.Update(c.Request.Context(), user, id, req)
	if err != nil {
		responses.Error(c, err, "Failed to update filter")
		return
	}
	responses.Success(c, http.StatusOK, filter, "Filter updated successfully")
}

// DeleteFilter handles DELETE /api/v1/filters/:id
func (h *FilterHandler) DeleteFilter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.filterService.Delete(c.Request.Context(), user, id); err != nil {
		responses.Error(c, err, "Failed to delete filter")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Filter deleted successfully")
}

// FilterEntries handles GET /api/v1/filters/:id/entries and returns the
// joined rows one page at a time.
func (h *FilterHandler) FilterEntries(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	page, err := h.filterService.Entries(c.Request.Context(), user, id, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to retrieve filter entries")
		return
	}
	responses.Paginated(c, page.Page.Number, page.TotalPages(), page.Count, page.Results)
}
