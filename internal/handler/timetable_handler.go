package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRunResponse, error)
	Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRun, error)
	Status(ctx context.Context, runID string) (*dto.TimetableRun, error)
	Cancel(ctx context.Context, runID string) (*dto.TimetableRun, error)
	AnalyzeRun(ctx context.Context, runID string) (*dto.TimetableAnalysisResponse, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Schedule, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	AnalyzeSchedule(ctx context.Context, id string) (*dto.TimetableAnalysisResponse, error)
	Delete(ctx context.Context, id string) error
	Audit(ctx context.Context) (*dto.CommitmentAuditResponse, error)
}

// TimetableHandler exposes timetable generation endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Run a timetable search and wait for the result
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Submit godoc
// @Summary Queue a timetable search
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 202 {object} response.Envelope
// @Router /timetables/runs [post]
func (h *TimetableHandler) Submit(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	run, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run, c.FullPath()+"/"+run.ID)
}

// Run godoc
// @Summary Get the status and result of a timetable run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) Run(c *gin.Context) {
	run, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// CancelRun godoc
// @Summary Cancel a queued or running timetable search
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Router /timetables/runs/{id} [delete]
func (h *TimetableHandler) CancelRun(c *gin.Context) {
	run, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run, "")
}

// RunAnalysis godoc
// @Summary Conflict report and grid for a finished run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs/{id}/analysis [get]
func (h *TimetableHandler) RunAnalysis(c *gin.Context) {
	analysis, err := h.service.AnalyzeRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil)
}

// Save godoc
// @Summary Persist the winner of a finished run
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.SaveTimetableRequest true "Save timetable payload"
// @Success 201 {object} response.Envelope
// @Router /timetables/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	saved, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// List godoc
// @Summary List stored timetables of a term
// @Tags Timetables
// @Produce json
// @Param termId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "termId is required"))
		return
	}
	schedules, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, &models.Pagination{Page: 1, PageSize: len(schedules), TotalCount: len(schedules)})
}

// Get godoc
// @Summary Get a stored timetable with its slots
// @Tags Timetables
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Analysis godoc
// @Summary Conflict report and grid for a stored timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/analysis [get]
func (h *TimetableHandler) Analysis(c *gin.Context) {
	analysis, err := h.service.AnalyzeSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil)
}

// Delete godoc
// @Summary Delete a stored timetable
// @Tags Timetables
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Audit godoc
// @Summary Teachers double-booked across all stored timetables
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetables/audit [get]
func (h *TimetableHandler) Audit(c *gin.Context) {
	report, err := h.service.Audit(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Register mounts the timetable routes. Reads need any valid token; searches,
// saves and deletions need an admin or scheduler role.
func (h *TimetableHandler) Register(group *gin.RouterGroup, tokens middleware.TokenValidator, audit func(action string) gin.HandlerFunc) {
	if audit == nil {
		audit = func(string) gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }
	}
	writers := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)

	timetables := group.Group("/timetables", middleware.JWT(tokens))
	timetables.GET("", h.List)
	timetables.GET("/audit", h.Audit)
	timetables.GET("/:id", h.Get)
	timetables.GET("/:id/analysis", h.Analysis)
	timetables.DELETE("/:id", writers, audit("delete"), h.Delete)
	timetables.POST("/generate", writers, audit("generate"), h.Generate)
	timetables.POST("/save", writers, audit("save"), h.Save)

	runs := timetables.Group("/runs")
	runs.POST("", writers, audit("submit"), h.Submit)
	runs.GET("/:id", h.Run)
	runs.DELETE("/:id", writers, audit("cancel"), h.CancelRun)
	runs.GET("/:id/analysis", h.RunAnalysis)
}
