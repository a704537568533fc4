package handlers

import (
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

type SystemLogHandler struct {
	systemLogService *services.SystemLogService
	retentionDays    int
}

func NewSystemLogHandler(systemLogService *services.SystemLogService, retentionDays int) *SystemLogHandler {
	return &SystemLogHandler{
		systemLogService: systemLogService,
		retentionDays:    retentionDays,
	}
}

// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.systemLogService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/system-logs/modules
func (h *SystemLogHandler) GetModules(c *gin.Context) {
	modules, err := h.systemLogService.GetModules()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, modules)
}

type cleanupRequest struct {
	RetentionDays *int `form:"retention_days" binding:"omitempty,min=1"`
}

// Cleanup removes logs older than the configured retention, or older than
// retention_days when the admin passes one.
// POST /api/system-logs/cleanup
func (h *SystemLogHandler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if !bindQuery(c, &req) {
		return
	}
	days := h.retentionDays
	if req.RetentionDays != nil {
		days = *req.RetentionDays
	}

	deleted, err := h.systemLogService.CleanupOldLogs(days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted, "retention_days": days})
}
