package services

import (
	"errors"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

// VisibilityService computes which projects, tasks and users a principal
// may read.
type VisibilityService struct {
	db *gorm.DB
}

func NewVisibilityService(db *gorm.DB) *VisibilityService {
	return &VisibilityService{db: db}
}

type ProjectListRequest struct {
	PageRequest
	Archived *bool  `form:"archived"`
	Title    string `form:"title"`
}

type TaskListRequest struct {
	PageRequest
	ProjectID  uint              `form:"project_id"`
	Status     models.TaskStatus `form:"status"`
	AssigneeID uint              `form:"assignee_id"`
}

type UserListRequest struct {
	PageRequest
	Role   string `form:"role"`
	Search string `form:"search"`
}

func memberProjects(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", userID)
}

// scopeProjects restricts a projects query to what p may see.
func scopeProjects(db *gorm.DB, q *gorm.DB, p authz.Principal) (*gorm.DB, error) {
	switch p.Role {
	case models.RoleAdmin:
		return q, nil
	case models.RoleManager, models.RoleDeveloper:
		return q.Where("projects.id IN (?)", memberProjects(db, p.ID)), nil
	default:
		return nil, response.NewForbidden()
	}
}

// scopeTasks restricts a tasks query to what p may see.
func scopeTasks(db *gorm.DB, q *gorm.DB, p authz.Principal) (*gorm.DB, error) {
	switch p.Role {
	case models.RoleAdmin:
		return q, nil
	case models.RoleManager:
		return q.Where("tasks.project_id IN (?) OR tasks.assignee_id = ?", memberProjects(db, p.ID), p.ID), nil
	case models.RoleDeveloper:
		return q.Where("tasks.assignee_id = ?", p.ID), nil
	default:
		return nil, response.NewForbidden()
	}
}

// scopeUsers restricts a users query to what p may list.
func scopeUsers(q *gorm.DB, p authz.Principal) (*gorm.DB, error) {
	switch p.Role {
	case models.RoleAdmin:
		return q, nil
	case models.RoleManager:
		return q.Where("users.role = ? OR users.id = ?", models.RoleDeveloper, p.ID), nil
	default:
		return nil, response.NewForbidden()
	}
}

func (s *VisibilityService) ListProjects(p authz.Principal, req *ProjectListRequest) (*ListResponse[models.Project], error) {
	query, err := scopeProjects(s.db, s.db.Model(&models.Project{}), p)
	if err != nil {
		return nil, err
	}
	if req.Archived != nil {
		query = query.Where("projects.archived = ?", *req.Archived)
	}
	if req.Title != "" {
		query = query.Where("projects.title LIKE ?", "%"+req.Title+"%")
	}
	return paginate[models.Project](query, &req.PageRequest, "projects.created_at DESC, projects.id DESC", "Members")
}

func (s *VisibilityService) ListTasks(p authz.Principal, req *TaskListRequest) (*ListResponse[models.Task], error) {
	query, err := scopeTasks(s.db, s.db.Model(&models.Task{}), p)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != 0 {
		query = query.Where("tasks.project_id = ?", req.ProjectID)
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, response.NewValidationFailed("invalid status", map[string]string{"status": string(req.Status)})
		}
		query = query.Where("tasks.status = ?", req.Status)
	}
	if req.AssigneeID != 0 {
		query = query.Where("tasks.assignee_id = ?", req.AssigneeID)
	}
	return paginate[models.Task](query, &req.PageRequest, "tasks.created_at DESC, tasks.id DESC", "Assignee")
}

func (s *VisibilityService) ListUsers(p authz.Principal, req *UserListRequest) (*ListResponse[models.User], error) {
	query, err := scopeUsers(s.db.Model(&models.User{}), p)
	if err != nil {
		return nil, err
	}
	if req.Role != "" {
		query = query.Where("users.role = ?", req.Role)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("users.name LIKE ? OR users.email LIKE ?", like, like)
	}
	return paginate[models.User](query, &req.PageRequest, "users.id ASC")
}

// TasksForUser lists the tasks assigned to targetID that p may see. A manager
// sees the target's tasks only where they are assigned to the manager, or
// where the task is in one of the manager's projects and the target is a
// developer.
func (s *VisibilityService) TasksForUser(p authz.Principal, targetID uint) ([]models.Task, error) {
	var target models.User
	if err := s.db.First(&target, targetID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	query := s.db.Model(&models.Task{}).Where("tasks.assignee_id = ?", targetID)

	switch p.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		query = query.
			Joins("JOIN users assignee ON assignee.id = tasks.assignee_id").
			Where(
				s.db.Where("tasks.assignee_id = ?", p.ID).
					Or("tasks.project_id IN (?) AND assignee.role = ?", memberProjects(s.db, p.ID), models.RoleDeveloper),
			)
	case models.RoleDeveloper:
		if targetID != p.ID {
			return nil, response.NewForbidden()
		}
	default:
		return nil, response.NewForbidden()
	}

	tasks := make([]models.Task, 0)
	if err := query.Preload("Project").Order("tasks.id DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// AssignedTasks lists the target's assignments within p's task visibility.
// Developers cannot use it.
func (s *VisibilityService) AssignedTasks(p authz.Principal, targetID uint) ([]models.Task, error) {
	if p.Role != models.RoleAdmin && p.Role != models.RoleManager {
		return nil, response.NewForbidden()
	}
	var target models.User
	if err := s.db.First(&target, targetID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	query, err := scopeTasks(s.db, s.db.Model(&models.Task{}).Where("tasks.assignee_id = ?", targetID), p)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0)
	if err := query.Preload("Project").Order("tasks.id DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// CanViewProject reports whether p may read the project.
func (s *VisibilityService) CanViewProject(p authz.Principal, projectID uint) (bool, error) {
	return canViewProject(s.db, p, projectID)
}

func canViewProject(db *gorm.DB, p authz.Principal, projectID uint) (bool, error) {
	switch p.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleManager, models.RoleDeveloper:
		return isMember(db, projectID, p.ID)
	default:
		return false, nil
	}
}

// CanViewTask reports whether p may read the task.
func (s *VisibilityService) CanViewTask(p authz.Principal, task *models.Task) (bool, error) {
	return canViewTask(s.db, p, task)
}

func canViewTask(db *gorm.DB, p authz.Principal, task *models.Task) (bool, error) {
	switch p.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleManager:
		if task.IsAssignedTo(p.ID) {
			return true, nil
		}
		return isMember(db, task.ProjectID, p.ID)
	case models.RoleDeveloper:
		return task.IsAssignedTo(p.ID), nil
	default:
		return false, nil
	}
}

// CanViewUser reports whether p may read the user's record.
func (s *VisibilityService) CanViewUser(p authz.Principal, user *models.User) bool {
	if user.ID == p.ID {
		return true
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleManager:
		return user.Role == models.RoleDeveloper
	default:
		return false
	}
}

func isMember(db *gorm.DB, projectID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetProject loads a project with its members, failing with NotFound or
// Forbidden.
func (s *VisibilityService) GetProject(p authz.Principal, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, id).Error; err != nil {
		return nil, notFound(err, "project")
	}
	ok, err := canViewProject(s.db, p, project.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewForbidden()
	}
	return &project, nil
}

func (s *VisibilityService) GetTask(p authz.Principal, id uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.Preload("Assignee").Preload("Project").First(&task, id).Error; err != nil {
		return nil, notFound(err, "task")
	}
	ok, err := canViewTask(s.db, p, &task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewForbidden()
	}
	return &task, nil
}

func (s *VisibilityService) GetUser(p authz.Principal, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, err
	}
	if !s.CanViewUser(p, &user) {
		return nil, response.NewForbidden()
	}
	return &user, nil
}

// ActivityFilter returns the SSE filter for p. Events are checked against
// the current state, so a user removed from a project stops seeing its
// events immediately.
func (s *VisibilityService) ActivityFilter(p authz.Principal) ActivityFilter {
	if p.Role == models.RoleAdmin {
		return nil
	}
	return func(ev ActivityEvent) bool {
		if ev.Owner == "task" {
			var task models.Task
			if err := s.db.First(&task, ev.OwnerID).Error; err == nil {
				ok, err := canViewTask(s.db, p, &task)
				return err == nil && ok
			}
			if p.Role == models.RoleDeveloper {
				return false
			}
		}
		ok, err := canViewProject(s.db, p, ev.ProjectID)
		return err == nil && ok
	}
}
