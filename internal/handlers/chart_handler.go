package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabula/internal/models"
	"tabula/internal/responses"
	"tabula/internal/services"
)

type ChartHandler struct {
	chartService *services.ChartService
}

func NewChartHandler(chartService *services.ChartService) *ChartHandler {
	return &ChartHandler{
		chartService: chartService,
	}
}

// CreateChart handles POST /api/v1/charts
func (h *ChartHandler) CreateChart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.ChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	chart, err := h.chartService.Create(c.Request.Context(), user, req)
	if err != nil {
		responses.Error(c, err, "Failed to create chart")
		return
	}
	responses.Success(c, http.StatusCreated, chart, "Chart created successfully")
}

// ListCharts handles GET /api/v1/charts?table=<id>
func (h *ChartHandler) ListCharts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tableID, ok := optionalUUID(c, "table")
	if !ok {
		return
	}

	charts, err := h.chartService.List(c.Request.Context(), user, tableID)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve charts")
		return
	}
	responses.Success(c, http.StatusOK, charts, "Charts retrieved successfully")
}

// GetChart handles GET /api/v1/charts/:id
func (h *ChartHandler) GetChart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	chart, err := h.chartService.Get(c.Request.Context(), user, id)
	if err != nil {
		responses.Error(c, err, "Failed to retrieve chart")
		return
	}
	responses.Success(c, http.StatusOK, chart, "Chart retrieved successfully")
}

// UpdateChart handles PUT /api/v1/charts/:id
func (h *ChartHandler) UpdateChart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.ChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	chart, err := h.chartService.Update(c.Request.Context(), user, id, req)
	if err != nil {
		responses.Error(c, err, "Failed to update chart")
		return
	}
	responses.Success(c, http.StatusOK, chart, "Chart updated successfully")
}

// DeleteChart handles DELETE /api/v1/charts/:id
func (h *ChartHandler) DeleteChart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.chartService.Delete(c.Request.Context(), user, id); err != nil {
		responses.Error(c, err, "Failed to delete chart")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Chart deleted successfully")
}

// ChartData handles GET /api/v1/charts/:id/data. Query parameters narrow
// the entries that are aggregated.
func (h *ChartHandler) ChartData(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	data, err := h.chartService.Data(c.Request.Context(), user, id, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to compute chart data")
		return
	}
	responses.Success(c, http.StatusOK, data, "Chart data retrieved successfully")
}

// PreviewChart handles GET /api/v1/charts/preview. The chart is described
// entirely by query parameters and is never saved.
func (h *ChartHandler) PreviewChart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	req, ok := previewRequest(c)
	if !ok {
		return
	}

	data, err := h.chartService.Preview(c.Request.Context(), user, req, c.Request.URL.Query())
	if err != nil {
		responses.Error(c, err, "Failed to compute chart data")
		return
	}
	responses.Success(c, http.StatusOK, data, "Chart data retrieved successfully")
}

func previewRequest(c *gin.Context) (services.ChartRequest, bool) {
	req := services.ChartRequest{
		Name:                 "preview",
		ChartType:            c.Query("chart_type"),
		TimelinePeriod:       models.TimelinePeriod(c.Query("timeline_period")),
		TimelineIncludeNulls: c.Query("timeline_include_nulls") == "true",
		YAxisFunction:        models.AggregateFunc(c.Query("y_axis_function")),
	}

	tableID, ok := optionalUUID(c, "table")
	if !ok {
		return req, false
	}
	if tableID == nil {
		responses.Fail(c, http.StatusBadRequest, nil, "The table query parameter is required")
		return req, false
	}
	req.TableID = *tableID

	for name, dst := range map[string]**uuid.UUID{
		"timeline_field": &req.TimelineFieldID,
		"x_axis_field":   &req.XAxisFieldID,
		"y_axis_field":   &req.YAxisFieldID,
	} {
		id, ok := optionalUUID(c, name)
		if !ok {
			return req, false
		}
		*dst = id
	}
	return req, true
}
