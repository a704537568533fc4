package handlers

import (
	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService    *services.TaskService
	timeLogService *services.TimeLogService
	visibility     *services.VisibilityService
}

func NewTaskHandler(taskService *services.TaskService, timeLogService *services.TimeLogService, visibility *services.VisibilityService) *TaskHandler {
	return &TaskHandler{
		taskService:    taskService,
		timeLogService: timeLogService,
		visibility:     visibility,
	}
}

// List returns paginated tasks visible to the caller
// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	var req services.TaskListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.visibility.ListTasks(middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}

	task, err := h.visibility.GetTask(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Update applies a partial update; each present field is authorized separately
// PATCH /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// PUT /api/tasks/:id/status
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.StatusRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.UpdateStatus(c.Request.Context(), middleware.GetPrincipal(c), id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// PUT /api/tasks/:id/deadline
func (h *TaskHandler) UpdateDeadline(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.DeadlineRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.UpdateDeadline(c.Request.Context(), middleware.GetPrincipal(c), id, req.DueDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "deleted"})
}

// GET /api/tasks/:id/history
func (h *TaskHandler) History(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.PageRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.taskService.History(middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// LogTime records hours against a task
// POST /api/tasks/:id/time-logs
func (h *TaskHandler) LogTime(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.LogTimeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.timeLogService.LogTime(c.Request.Context(), middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GET /api/tasks/:id/time-logs
func (h *TaskHandler) TimeLogs(c *gin.Context) {
	id, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.PageRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.timeLogService.List(middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
