package handlers

import (
	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	commentService *services.CommentService
}

func NewCommentHandler(commentService *services.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

// List returns a task's comments in posting order
// GET /api/tasks/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	taskID, ok := paramID(c, "id", "task")
	if !ok {
		return
	}

	comments, err := h.commentService.List(middleware.GetPrincipal(c), taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comments)
}

// POST /api/tasks/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	taskID, ok := paramID(c, "id", "task")
	if !ok {
		return
	}
	var req services.CreateCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.commentService.Add(c.Request.Context(), middleware.GetPrincipal(c), taskID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// DELETE /api/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", "comment")
	if !ok {
		return
	}

	if err := h.commentService.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "deleted"})
}
