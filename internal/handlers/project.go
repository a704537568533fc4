package handlers

import (
	"context"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService *services.ProjectService
	visibility     *services.VisibilityService
	reports        *services.ReportService
}

func NewProjectHandler(projectService *services.ProjectService, visibility *services.VisibilityService, reports *services.ReportService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		visibility:     visibility,
		reports:        reports,
	}
}

// List returns paginated projects visible to the caller
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.visibility.ListProjects(middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetByID returns a project with its members
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}

	project, err := h.visibility.GetProject(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// Create creates a new project
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// Update applies a partial update
// PATCH /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}
	var req services.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// SetArchived archives or unarchives a project
// PUT /api/projects/:id/archive
func (h *ProjectHandler) SetArchived(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}
	var req services.ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.SetArchived(c.Request.Context(), middleware.GetPrincipal(c), id, *req.Archived)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// Delete removes a project and everything it owns
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}

	result, err := h.projectService.Delete(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Members lists a project's members
// GET /api/projects/:id/members
func (h *ProjectHandler) Members(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}

	members, err := h.projectService.Members(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// AddMembers adds users to a project
// POST /api/projects/:id/members
func (h *ProjectHandler) AddMembers(c *gin.Context) {
	h.changeMembers(c, h.projectService.AddMembers)
}

// RemoveMembers removes users from a project
// DELETE /api/projects/:id/members
func (h *ProjectHandler) RemoveMembers(c *gin.Context) {
	h.changeMembers(c, h.projectService.RemoveMembers)
}

func (h *ProjectHandler) changeMembers(c *gin.Context, apply func(context.Context, authz.Principal, uint, []uint) (*models.Project, error)) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}
	var req services.MembersRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := apply(c.Request.Context(), middleware.GetPrincipal(c), id, req.MemberIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// History returns the project's audit trail, newest first
// GET /api/projects/:id/history
func (h *ProjectHandler) History(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}
	var req services.PageRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.projectService.History(middleware.GetPrincipal(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Progress returns per-status task counts for one project
// GET /api/projects/:id/progress
func (h *ProjectHandler) Progress(c *gin.Context) {
	id, ok := paramID(c, "id", "project")
	if !ok {
		return
	}

	progress, err := h.reports.ProjectProgress(middleware.GetPrincipal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, progress)
}
