package handlers

import (
	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *services.UserService
	visibility  *services.VisibilityService
}

func NewUserHandler(userService *services.UserService, visibility *services.VisibilityService) *UserHandler {
	return &UserHandler{userService: userService, visibility: visibility}
}

// List returns the users the caller may see
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	var req services.UserListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.visibility.ListUsers(middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/users/:id
func (h *UserHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	user, err := h.visibility.GetUser(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// Roles lists the assignable roles for admins and managers
// GET /api/roles
func (h *UserHandler) Roles(c *gin.Context) {
	roles, err := h.userService.Roles(middleware.GetPrincipal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, roles)
}

// GET /api/users/me
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.Me(middleware.GetPrincipal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// PUT /api/users/:id/toggle-active
func (h *UserHandler) ToggleActivation(c *gin.Context) {
	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	user, err := h.userService.ToggleActivation(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	if err := h.userService.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "deleted"})
}

// Tasks lists tasks the user created or is assigned, limited to what the
// caller can see
// GET /api/users/:id/tasks
func (h *UserHandler) Tasks(c *gin.Context) {
	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	tasks, err := h.visibility.TasksForUser(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tasks)
}

// GET /api/users/:id/assigned-tasks
func (h *UserHandler) AssignedTasks(c *gin.Context) {
	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	tasks, err := h.visibility.AssignedTasks(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tasks)
}
