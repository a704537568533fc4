package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/optional"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

type TaskService struct {
	db     *gorm.DB
	authz  *authz.Authorizer
	events Publisher
}

func NewTaskService(db *gorm.DB, authorizer *authz.Authorizer, events Publisher) *TaskService {
	return &TaskService{db: db, authz: authorizer, events: events}
}

type CreateTaskRequest struct {
	ProjectID      uint                `json:"project_id" binding:"required"`
	Title          string              `json:"title" binding:"required,max=255"`
	Description    string              `json:"description"`
	Status         models.TaskStatus   `json:"status"`
	Priority       models.TaskPriority `json:"priority"`
	DueDate        *time.Time          `json:"due_date"`
	AssigneeID     *uint               `json:"assignee_id"`
	EstimatedHours float64             `json:"estimated_hours"`
}

// UpdateTaskRequest distinguishes omitted fields from explicit values.
// due_date and assignee_id may be cleared with null.
type UpdateTaskRequest struct {
	Title          optional.Field[string]              `json:"title"`
	Description    optional.Field[string]              `json:"description"`
	Status         optional.Field[models.TaskStatus]   `json:"status"`
	Priority       optional.Field[models.TaskPriority] `json:"priority"`
	DueDate        optional.Field[time.Time]           `json:"due_date"`
	AssigneeID     optional.Field[uint]                `json:"assignee_id"`
	EstimatedHours optional.Field[float64]             `json:"estimated_hours"`
	ActualHours    optional.Field[float64]             `json:"actual_hours"`
}

type StatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

type DeadlineRequest struct {
	DueDate *time.Time `json:"due_date" binding:"required"`
}

// taskAction maps each updatable field to the action that guards it.
var taskAction = map[string]authz.Action{
	"title":           authz.TaskUpdate,
	"description":     authz.TaskUpdate,
	"priority":        authz.TaskUpdate,
	"estimated_hours": authz.TaskUpdate,
	"actual_hours":    authz.TaskUpdate,
	"due_date":        authz.TaskUpdateDeadline,
	"assignee_id":     authz.TaskAssign,
	"status":          authz.TaskUpdateStatus,
}

func (r *UpdateTaskRequest) present() []string {
	var fields []string
	add := func(name string, set bool) {
		if set {
			fields = append(fields, name)
		}
	}
	add("title", r.Title.Set)
	add("description", r.Description.Set)
	add("status", r.Status.Set)
	add("priority", r.Priority.Set)
	add("due_date", r.DueDate.Set)
	add("assignee_id", r.AssigneeID.Set)
	add("estimated_hours", r.EstimatedHours.Set)
	add("actual_hours", r.ActualHours.Set)
	return fields
}

func (s *TaskService) Create(ctx context.Context, p authz.Principal, req *CreateTaskRequest) (*models.Task, error) {
	var task models.Task
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, memberIDs, err := loadProject(tx, req.ProjectID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.TaskCreate, authz.ProjectTarget(memberIDs)); err != nil {
			return err
		}

		title := strings.TrimSpace(req.Title)
		if title == "" {
			return response.NewValidationFailed("title is required", map[string]string{"title": req.Title})
		}
		if req.Status == "" {
			req.Status = models.TaskStatusTodo
		}
		if req.Priority == "" {
			req.Priority = models.TaskPriorityMedium
		}
		if err := validateTaskValues(req.Status, req.Priority, req.EstimatedHours, 0); err != nil {
			return err
		}
		if req.AssigneeID != nil {
			if err := validateAssignee(tx, project.ID, memberIDs, *req.AssigneeID); err != nil {
				return err
			}
		}

		task = models.Task{
			ProjectID:      project.ID,
			Title:          title,
			Description:    req.Description,
			Status:         req.Status,
			Priority:       req.Priority,
			DueDate:        req.DueDate,
			AssigneeID:     req.AssigneeID,
			EstimatedHours: req.EstimatedHours,
			CreatedBy:      actorID(p),
		}
		if err := tx.Create(&task).Error; err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, actorID(p))
		if _, err := rec.RecordTask(&task, audit.Entry{
			Action:      models.ActionCreated,
			Description: fmt.Sprintf("%s created task '%s'", name, task.Title),
		}); err != nil {
			return err
		}
		taskID := fmt.Sprint(task.ID)
		_, err = rec.RecordProject(project.ID, audit.Entry{
			Action:      models.ActionTaskCreated,
			Field:       "task",
			New:         &taskID,
			Description: fmt.Sprintf("%s added task '%s'", name, task.Title),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(task.ID)
}

// Update applies the present fields. Every present field is authorized
// against the action guarding it before anything is compared, so a
// developer sending a title alongside a status is refused even when the
// title is unchanged.
func (s *TaskService) Update(ctx context.Context, p authz.Principal, id uint, req *UpdateTaskRequest) (*models.Task, error) {
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, id)
		if err != nil {
			return err
		}

		seen := map[authz.Action]bool{}
		for _, field := range req.present() {
			action := taskAction[field]
			if seen[action] {
				continue
			}
			seen[action] = true
			if err := s.authz.Authorize(p, action, authz.TaskTarget(task)); err != nil {
				return err
			}
		}

		if err := s.validateUpdate(tx, task, req); err != nil {
			return err
		}

		changes := audit.Detect(
			audit.Value("title", task.Title, req.Title),
			audit.Value("description", task.Description, req.Description),
			audit.Value("status", task.Status, req.Status),
			audit.Value("priority", task.Priority, req.Priority),
			audit.Pointer("due_date", task.DueDate, req.DueDate),
			audit.Pointer("assignee_id", task.AssigneeID, req.AssigneeID),
			audit.Value("estimated_hours", task.EstimatedHours, req.EstimatedHours),
			audit.Value("actual_hours", task.ActualHours, req.ActualHours),
		)
		if changes.Empty() {
			return nil
		}

		updates := make(map[string]interface{}, len(changes))
		for _, fc := range changes {
			switch fc.Field {
			case "title":
				updates["title"] = req.Title.Value
			case "description":
				updates["description"] = req.Description.Value
			case "status":
				updates["status"] = req.Status.Value
			case "priority":
				updates["priority"] = req.Priority.Value
			case "due_date":
				updates["due_date"] = req.DueDate.Ptr()
			case "assignee_id":
				updates["assignee_id"] = req.AssigneeID.Ptr()
			case "estimated_hours":
				updates["estimated_hours"] = req.EstimatedHours.Value
			case "actual_hours":
				updates["actual_hours"] = req.ActualHours.Value
			}
		}
		if err := tx.Model(task).Updates(updates).Error; err != nil {
			return err
		}

		rec = audit.NewRecorder(tx, actorID(p))
		return s.recordChanges(tx, rec, p, task, changes)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(id)
}

// UpdateStatus changes only the status.
func (s *TaskService) UpdateStatus(ctx context.Context, p authz.Principal, id uint, status models.TaskStatus) (*models.Task, error) {
	return s.Update(ctx, p, id, &UpdateTaskRequest{Status: optional.Of(status)})
}

// UpdateDeadline changes only the due date; clearing it goes through Update.
func (s *TaskService) UpdateDeadline(ctx context.Context, p authz.Principal, id uint, dueDate *time.Time) (*models.Task, error) {
	if dueDate == nil {
		return nil, response.NewValidationFailed("due_date is required", map[string]interface{}{"due_date": nil})
	}
	return s.Update(ctx, p, id, &UpdateTaskRequest{DueDate: optional.Of(*dueDate)})
}

// Delete removes a task with its comments, time logs and history and
// notes the removal on the project's history.
func (s *TaskService) Delete(ctx context.Context, p authz.Principal, id uint) error {
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.TaskDelete, authz.TaskTarget(task)); err != nil {
			return err
		}

		for _, model := range []interface{}{&models.Comment{}, &models.TimeLog{}, &models.TaskHistory{}} {
			if err := tx.Where("task_id = ?", task.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(task).Error; err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		taskID := fmt.Sprint(task.ID)
		rec = audit.NewRecorder(tx, actorID(p))
		_, err = rec.RecordProject(task.ProjectID, audit.Entry{
			Action:      models.ActionTaskDeleted,
			Field:       "task",
			Old:         &taskID,
			Description: fmt.Sprintf("%s deleted task '%s'", name, task.Title),
		})
		return err
	})
	if err != nil {
		return err
	}

	publish(ctx, s.events, rec)
	return nil
}

// History lists a task's history, newest first.
func (s *TaskService) History(p authz.Principal, id uint, req *PageRequest) (*ListResponse[models.TaskHistory], error) {
	if _, err := NewVisibilityService(s.db).GetTask(p, id); err != nil {
		return nil, err
	}
	query := s.db.Model(&models.TaskHistory{}).Where("task_id = ?", id)
	return paginate[models.TaskHistory](query, req, "created_at DESC, id DESC", "User")
}

func (s *TaskService) validateUpdate(tx *gorm.DB, task *models.Task, req *UpdateTaskRequest) error {
	if req.Title.Set {
		if t, ok := req.Title.Get(); !ok || strings.TrimSpace(t) == "" {
			return response.NewValidationFailed("title cannot be empty", map[string]interface{}{"title": req.Title.Ptr()})
		}
		req.Title.Value = strings.TrimSpace(req.Title.Value)
	}
	for name, f := range map[string]bool{
		"description":     req.Description.Null,
		"status":          req.Status.Null,
		"priority":        req.Priority.Null,
		"estimated_hours": req.EstimatedHours.Null,
		"actual_hours":    req.ActualHours.Null,
	} {
		if f {
			return response.NewValidationFailed(name+" cannot be null", map[string]interface{}{name: nil})
		}
	}

	status, priority := task.Status, task.Priority
	if req.Status.Set {
		status = req.Status.Value
	}
	if req.Priority.Set {
		priority = req.Priority.Value
	}
	if err := validateTaskValues(status, priority, req.EstimatedHours.Value, req.ActualHours.Value); err != nil {
		return err
	}

	if id, ok := req.AssigneeID.Get(); ok {
		var memberIDs []uint
		if err := tx.Model(&models.ProjectMember{}).Where("project_id = ?", task.ProjectID).Pluck("user_id", &memberIDs).Error; err != nil {
			return err
		}
		return validateAssignee(tx, task.ProjectID, memberIDs, id)
	}
	return nil
}

func (s *TaskService) recordChanges(tx *gorm.DB, rec *audit.Recorder, p authz.Principal, task *models.Task, changes audit.Changes) error {
	name, err := actorName(tx, p)
	if err != nil {
		return err
	}
	for _, fc := range changes {
		action := models.ActionUpdated
		desc := fmt.Sprintf("%s changed %s from %s to %s", name, fc.Field, quoted(fc.Old), quoted(fc.New))
		switch fc.Field {
		case "status":
			action = models.ActionStatusChanged
			desc = fmt.Sprintf("%s moved task '%s' from %s to %s", name, task.Title, quoted(fc.Old), quoted(fc.New))
		case "assignee_id":
			action = models.ActionAssigned
			desc, err = assignmentDescription(tx, name, task, fc.New)
			if err != nil {
				return err
			}
		}
		if _, err := rec.RecordTask(task, audit.FromChange(action, fc, desc)); err != nil {
			return err
		}
	}
	return nil
}

func assignmentDescription(tx *gorm.DB, actor string, task *models.Task, newID *string) (string, error) {
	if newID == nil {
		return fmt.Sprintf("%s unassigned task '%s'", actor, task.Title), nil
	}
	var assignee models.User
	if err := tx.Select("id", "name").Where("id = ?", *newID).First(&assignee).Error; err != nil {
		return "", notFound(err, "assignee")
	}
	return fmt.Sprintf("%s assigned task '%s' to %s", actor, task.Title, assignee.Name), nil
}

func (s *TaskService) reload(id uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.Preload("Assignee").First(&task, id).Error; err != nil {
		return nil, notFound(err, "task")
	}
	return &task, nil
}

func loadTask(tx *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	if err := tx.First(&task, id).Error; err != nil {
		return nil, notFound(err, "task")
	}
	return &task, nil
}

func validateTaskValues(status models.TaskStatus, priority models.TaskPriority, estimated, actual float64) error {
	if !status.Valid() {
		return response.NewValidationFailed("invalid status", map[string]interface{}{"status": status})
	}
	if !priority.Valid() {
		return response.NewValidationFailed("invalid priority", map[string]interface{}{"priority": priority})
	}
	if estimated < 0 || actual < 0 {
		return response.NewValidationFailed("hours cannot be negative", map[string]float64{
			"estimated_hours": estimated,
			"actual_hours":    actual,
		})
	}
	return nil
}

// validateAssignee requires the assignee to exist and belong to the project.
func validateAssignee(tx *gorm.DB, projectID uint, memberIDs []uint, assigneeID uint) error {
	if err := validateUserIDs(tx, []uint{assigneeID}); err != nil {
		return err
	}
	for _, id := range memberIDs {
		if id == assigneeID {
			return nil
		}
	}
	return response.NewValidationFailed(
		fmt.Sprintf("user %d is not a member of project %d", assigneeID, projectID),
		map[string]uint{"assignee_id": assigneeID},
	)
}
