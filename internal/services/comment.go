package services

import (
	"context"
	"strings"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

type CommentService struct {
	db    *gorm.DB
	authz *authz.Authorizer
}

func NewCommentService(db *gorm.DB, authorizer *authz.Authorizer) *CommentService {
	return &CommentService{db: db, authz: authorizer}
}

type CreateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// CommentView is a comment annotated with whether the viewer may delete it.
type CommentView struct {
	models.Comment
	CanDelete bool `json:"can_delete"`
}

func (s *CommentService) Add(ctx context.Context, p authz.Principal, taskID uint, req *CreateCommentRequest) (*models.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, response.NewValidationFailed("content is required", map[string]string{"content": req.Content})
	}

	comment := &models.Comment{TaskID: taskID, AuthorID: actorID(p), Content: content}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.CommentCreate, authz.TaskTarget(task)); err != nil {
			return err
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, err
	}
	if err := s.db.Preload("Author").First(comment, comment.ID).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// List returns the task's comments oldest first.
func (s *CommentService) List(p authz.Principal, taskID uint) ([]CommentView, error) {
	task, err := NewVisibilityService(s.db).GetTask(p, taskID)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := s.db.Preload("Author").Where("task_id = ?", taskID).Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, err
	}

	views := make([]CommentView, 0, len(comments))
	for i := range comments {
		ok, err := s.authz.Allowed(p, authz.CommentDelete, authz.CommentTarget(&comments[i], task))
		if err != nil {
			return nil, err
		}
		views = append(views, CommentView{Comment: comments[i], CanDelete: ok})
	}
	return views, nil
}

func (s *CommentService) Delete(ctx context.Context, p authz.Principal, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, id).Error; err != nil {
			return notFound(err, "comment")
		}
		task, err := loadTask(tx, comment.TaskID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.CommentDelete, authz.CommentTarget(&comment, task)); err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	})
}
