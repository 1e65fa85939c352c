package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/shuttle-backend-go/internal/insights"
	"github.com/jengzang/shuttle-backend-go/internal/models"
	"github.com/jengzang/shuttle-backend-go/internal/repository"
	"github.com/jengzang/shuttle-backend-go/internal/service"
	"github.com/jengzang/shuttle-backend-go/pkg/response"
)

// InsightsHandler handles HTTP requests for analytics and recommendations
type InsightsHandler struct {
	insightsService *service.InsightsService
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(insightsService *service.InsightsService) *InsightsHandler {
	return &InsightsHandler{
		insightsService: insightsService,
	}
}

// ChatRequest is the body of POST /insights/chat
type ChatRequest struct {
	Question string                `json:"question"`
	Snapshot *models.AnalyticsData `json:"snapshot,omitempty"`
}

// GetStats handles GET /api/v1/analytics/stats
func (h *InsightsHandler) GetStats(c *gin.Context) {
	report, err := h.insightsService.Stats(c.Request.Context(), nil)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, report)
}

// GetPredictions handles GET and POST /api/v1/insights/predictions.
// POST may carry a snapshot body; otherwise the stored records are used.
func (h *InsightsHandler) GetPredictions(c *gin.Context) {
	snapshot, ok := bindSnapshot(c)
	if !ok {
		return
	}
	result, err := h.insightsService.Predictions(c.Request.Context(), snapshot)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, result)
}

// GetOptimizations handles GET and POST /api/v1/insights/optimizations
func (h *InsightsHandler) GetOptimizations(c *gin.Context) {
	snapshot, ok := bindSnapshot(c)
	if !ok {
		return
	}
	result, err := h.insightsService.Optimizations(c.Request.Context(), snapshot)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, result)
}

// GetOverview handles GET /api/v1/insights/overview
func (h *InsightsHandler) GetOverview(c *gin.Context) {
	overview, err := h.insightsService.Overview(c.Request.Context(), nil)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, overview)
}

// Chat handles POST /api/v1/insights/chat
func (h *InsightsHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	outcome, err := h.insightsService.Chat(c.Request.Context(), req.Question, req.Snapshot)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion), errors.Is(err, service.ErrQuestionTooLong):
		response.BadRequest(c, err.Error())
		return
	case err != nil:
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, outcome)
}

// GetBudget handles GET /api/v1/insights/budget
func (h *InsightsHandler) GetBudget(c *gin.Context) {
	response.Success(c, h.insightsService.Budget())
}

// ListRuns handles GET /api/v1/insights/runs
func (h *InsightsHandler) ListRuns(c *gin.Context) {
	kind := c.Query("kind")
	if kind != "" && kind != string(insights.TaskDemandPredictions) && kind != string(insights.TaskScheduleOptimizations) {
		response.BadRequest(c, "Invalid kind parameter")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultRunLimit)))
	if err != nil || limit <= 0 || limit > 200 {
		response.BadRequest(c, "Invalid limit parameter")
		return
	}

	runs, err := h.insightsService.Runs(c.Request.Context(), kind, limit)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, runs)
}

// GetRun handles GET /api/v1/insights/runs/:id
func (h *InsightsHandler) GetRun(c *gin.Context) {
	run, err := h.insightsService.Run(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		response.NotFound(c, "Run not found")
		return
	}
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, run)
}

// bindSnapshot reads an optional snapshot body. An empty body yields nil.
func bindSnapshot(c *gin.Context) (*models.AnalyticsData, bool) {
	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return nil, true
	}
	var data models.AnalyticsData
	if err := c.ShouldBindJSON(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, true
		}
		response.BadRequest(c, "Invalid snapshot body")
		return nil, false
	}
	return &data, true
}
