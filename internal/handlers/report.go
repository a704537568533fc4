package handlers

import (
	"time"

	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

// ReportHandler serves progress aggregates and overdue snapshots.
type ReportHandler struct {
	reports  *services.ReportService
	overdue  *services.OverdueReportService
	holidays *services.HolidayService
}

func NewReportHandler(reports *services.ReportService, overdue *services.OverdueReportService, holidays *services.HolidayService) *ReportHandler {
	return &ReportHandler{reports: reports, overdue: overdue, holidays: holidays}
}

// GET /api/reports/summary
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, err := h.reports.Summary(middleware.GetPrincipal(c), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// GET /api/reports/task-counts
func (h *ReportHandler) TaskCounts(c *gin.Context) {
	counts, err := h.reports.TaskCounts(middleware.GetPrincipal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, counts)
}

// GET /api/reports/projects
func (h *ReportHandler) ProjectsProgress(c *gin.Context) {
	progress, err := h.reports.ProjectsProgress(middleware.GetPrincipal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, progress)
}

// GET /api/reports/overdue
func (h *ReportHandler) Overdue(c *gin.Context) {
	overdue, err := h.reports.OverdueByProject(middleware.GetPrincipal(c), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, overdue)
}

// ListSnapshots returns the stored daily overdue snapshots
// GET /api/reports/overdue-snapshots
func (h *ReportHandler) ListSnapshots(c *gin.Context) {
	var req services.OverdueReportListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.overdue.List(middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/reports/overdue-snapshots/:date
func (h *ReportHandler) GetSnapshot(c *gin.Context) {
	report, err := h.overdue.Get(middleware.GetPrincipal(c), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// GenerateSnapshot builds today's snapshot immediately
// POST /api/reports/overdue-snapshots
func (h *ReportHandler) GenerateSnapshot(c *gin.Context) {
	report, err := h.overdue.Generate(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// GET /api/holidays/countries
func (h *ReportHandler) Countries(c *gin.Context) {
	response.Success(c, h.holidays.GetSupportedCountries())
}
