package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/optional"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

type ProjectService struct {
	db     *gorm.DB
	authz  *authz.Authorizer
	events Publisher
}

func NewProjectService(db *gorm.DB, authorizer *authz.Authorizer, events Publisher) *ProjectService {
	return &ProjectService{db: db, authz: authorizer, events: events}
}

type CreateProjectRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description"`
	MemberIDs   []uint `json:"member_ids"`
}

// UpdateProjectRequest distinguishes omitted fields from explicit values.
type UpdateProjectRequest struct {
	Title       optional.Field[string] `json:"title"`
	Description optional.Field[string] `json:"description"`
	MemberIDs   optional.Field[[]uint] `json:"member_ids"`
}

type MembersRequest struct {
	MemberIDs []uint `json:"member_ids" binding:"required"`
}

type ArchiveRequest struct {
	Archived *bool `json:"archived" binding:"required"`
}

// ProjectDeletion reports how many rows each step of a project delete removed.
type ProjectDeletion struct {
	ProjectID        uint  `json:"project_id"`
	Comments         int64 `json:"comments"`
	TimeLogs         int64 `json:"time_logs"`
	TaskHistories    int64 `json:"task_histories"`
	Tasks            int64 `json:"tasks"`
	ProjectHistories int64 `json:"project_histories"`
	Memberships      int64 `json:"memberships"`
}

func (s *ProjectService) Create(ctx context.Context, p authz.Principal, req *CreateProjectRequest) (*models.Project, error) {
	if err := s.authz.Authorize(p, authz.ProjectCreate, authz.None); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewValidationFailed("title is required", map[string]string{"title": req.Title})
	}

	var project models.Project
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memberIDs := uniqueIDs(req.MemberIDs)
		if p.Role == models.RoleManager {
			memberIDs = uniqueIDs(append(memberIDs, p.ID))
		}
		if err := validateUserIDs(tx, memberIDs); err != nil {
			return err
		}

		project = models.Project{
			Title:       title,
			Description: req.Description,
			CreatedBy:   actorID(p),
		}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		if err := addMemberships(tx, project.ID, memberIDs); err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, actorID(p))
		if _, err := rec.RecordProject(project.ID, audit.Entry{
			Action:      models.ActionCreated,
			Description: fmt.Sprintf("%s created project '%s'", name, project.Title),
		}); err != nil {
			return err
		}
		if len(memberIDs) > 0 {
			if err := recordMembers(tx, rec, project.ID, name, models.ActionMembersAdded, memberIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(project.ID)
}

// Update applies the present fields. Fields equal to the stored value are
// ignored; if nothing differs no row is written at all.
func (s *ProjectService) Update(ctx context.Context, p authz.Principal, id uint, req *UpdateProjectRequest) (*models.Project, error) {
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, memberIDs, err := loadProject(tx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.ProjectUpdate, authz.ProjectTarget(memberIDs)); err != nil {
			return err
		}

		if req.Title.Set {
			if t, ok := req.Title.Get(); !ok || strings.TrimSpace(t) == "" {
				return response.NewValidationFailed("title cannot be empty", map[string]interface{}{"title": req.Title.Ptr()})
			}
			req.Title.Value = strings.TrimSpace(req.Title.Value)
		}
		var added, removed []uint
		if req.MemberIDs.Set {
			next, ok := req.MemberIDs.Get()
			if !ok {
				return response.NewValidationFailed("member_ids cannot be null", map[string]interface{}{"member_ids": nil})
			}
			if err := validateUserIDs(tx, next); err != nil {
				return err
			}
			added, removed = audit.DiffMembers(memberIDs, next)
		}

		changes := audit.Detect(
			audit.Value("title", project.Title, req.Title),
			audit.Value("description", project.Description, req.Description),
		)
		if changes.Empty() && len(added) == 0 && len(removed) == 0 {
			return nil
		}

		if !changes.Empty() {
			updates := make(map[string]interface{}, len(changes))
			if changes.Has("title") {
				updates["title"] = req.Title.Value
			}
			if changes.Has("description") {
				updates["description"] = req.Description.Value
			}
			if err := tx.Model(project).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := addMemberships(tx, project.ID, added); err != nil {
			return err
		}
		if err := removeMemberships(tx, project.ID, removed); err != nil {
			return err
		}
		if changes.Empty() {
			if err := touch(tx, project); err != nil {
				return err
			}
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, actorID(p))
		for _, fc := range changes {
			desc := fmt.Sprintf("%s changed %s from %s to %s", name, fc.Field, quoted(fc.Old), quoted(fc.New))
			if _, err := rec.RecordProject(project.ID, audit.FromChange(models.ActionUpdated, fc, desc)); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			if err := recordMembers(tx, rec, project.ID, name, models.ActionMembersAdded, added); err != nil {
				return err
			}
		}
		if len(removed) > 0 {
			if err := recordMembers(tx, rec, project.ID, name, models.ActionMembersRemoved, removed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(id)
}

// SetArchived is a no-op when the project is already in the requested state.
func (s *ProjectService) SetArchived(ctx context.Context, p authz.Principal, id uint, archived bool) (*models.Project, error) {
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, memberIDs, err := loadProject(tx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.ProjectArchive, authz.ProjectTarget(memberIDs)); err != nil {
			return err
		}

		changes := audit.Detect(audit.Value("archived", project.Archived, optional.Of(archived)))
		if changes.Empty() {
			return nil
		}
		if err := tx.Model(project).Update("archived", archived).Error; err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		verb := "archived"
		if !archived {
			verb = "unarchived"
		}
		rec = audit.NewRecorder(tx, actorID(p))
		_, err = rec.RecordProject(project.ID, audit.FromChange(models.ActionArchiveToggled, changes[0],
			fmt.Sprintf("%s %s project '%s'", name, verb, project.Title)))
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(id)
}

// AddMembers adds the users not yet in the project. Unknown ids reject the
// whole request.
func (s *ProjectService) AddMembers(ctx context.Context, p authz.Principal, id uint, userIDs []uint) (*models.Project, error) {
	return s.changeMembers(ctx, p, id, userIDs, models.ActionMembersAdded)
}

// RemoveMembers removes the listed users that are members; removing a
// non-member is a no-op.
func (s *ProjectService) RemoveMembers(ctx context.Context, p authz.Principal, id uint, userIDs []uint) (*models.Project, error) {
	return s.changeMembers(ctx, p, id, userIDs, models.ActionMembersRemoved)
}

func (s *ProjectService) changeMembers(ctx context.Context, p authz.Principal, id uint, userIDs []uint, action models.HistoryAction) (*models.Project, error) {
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, memberIDs, err := loadProject(tx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.ProjectUpdate, authz.ProjectTarget(memberIDs)); err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return response.NewValidationFailed("member_ids is required", map[string][]uint{"member_ids": {}})
		}
		if err := validateUserIDs(tx, userIDs); err != nil {
			return err
		}

		var delta []uint
		if action == models.ActionMembersAdded {
			delta, _ = audit.DiffMembers(memberIDs, append(append([]uint{}, memberIDs...), userIDs...))
			if err := addMemberships(tx, project.ID, delta); err != nil {
				return err
			}
		} else {
			_, delta = audit.DiffMembers(memberIDs, subtract(memberIDs, userIDs))
			if err := removeMemberships(tx, project.ID, delta); err != nil {
				return err
			}
		}
		if len(delta) == 0 {
			return nil
		}
		if err := touch(tx, project); err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, actorID(p))
		return recordMembers(tx, rec, project.ID, name, action, delta)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, rec)
	return s.reload(id)
}

// Delete removes a project and everything it owns, children first. The
// project's history goes with it, so the deletion is written to the system
// log in the same transaction.
func (s *ProjectService) Delete(ctx context.Context, p authz.Principal, id uint) (*ProjectDeletion, error) {
	result := &ProjectDeletion{ProjectID: id}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, memberIDs, err := loadProject(tx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.ProjectDelete, authz.ProjectTarget(memberIDs)); err != nil {
			return err
		}

		taskIDs := tx.Model(&models.Task{}).Select("id").Where("project_id = ?", id)
		steps := []struct {
			count *int64
			run   func() *gorm.DB
		}{
			{&result.Comments, func() *gorm.DB { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.Comment{}) }},
			{&result.TimeLogs, func() *gorm.DB { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.TimeLog{}) }},
			{&result.TaskHistories, func() *gorm.DB { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.TaskHistory{}) }},
			{&result.Tasks, func() *gorm.DB { return tx.Where("project_id = ?", id).Delete(&models.Task{}) }},
			{&result.ProjectHistories, func() *gorm.DB { return tx.Where("project_id = ?", id).Delete(&models.ProjectHistory{}) }},
			{&result.Memberships, func() *gorm.DB { return tx.Where("project_id = ?", id).Delete(&models.ProjectMember{}) }},
		}
		for _, step := range steps {
			res := step.run()
			if res.Error != nil {
				return res.Error
			}
			*step.count = res.RowsAffected
		}
		if err := tx.Delete(project).Error; err != nil {
			return err
		}

		return writeSystemLog(tx, &models.SystemLog{
			Level:   "info",
			Module:  "project",
			Action:  "delete",
			Message: fmt.Sprintf("project '%s' (#%d) deleted with %d tasks", project.Title, project.ID, result.Tasks),
			UserID:  actorID(p),
			Extra: map[string]interface{}{
				"project_id":        result.ProjectID,
				"comments":          result.Comments,
				"time_logs":         result.TimeLogs,
				"task_histories":    result.TaskHistories,
				"tasks":             result.Tasks,
				"project_histories": result.ProjectHistories,
				"memberships":       result.Memberships,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Members lists the members of a project visible to p.
func (s *ProjectService) Members(p authz.Principal, id uint) ([]*models.UserMini, error) {
	project, err := NewVisibilityService(s.db).GetProject(p, id)
	if err != nil {
		return nil, err
	}
	out := make([]*models.UserMini, 0, len(project.Members))
	for i := range project.Members {
		out = append(out, project.Members[i].Mini())
	}
	return out, nil
}

// History lists a project's history, newest first.
func (s *ProjectService) History(p authz.Principal, id uint, req *PageRequest) (*ListResponse[models.ProjectHistory], error) {
	if _, err := NewVisibilityService(s.db).GetProject(p, id); err != nil {
		return nil, err
	}
	query := s.db.Model(&models.ProjectHistory{}).Where("project_id = ?", id)
	return paginate[models.ProjectHistory](query, req, "created_at DESC, id DESC", "User")
}

func (s *ProjectService) reload(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, id).Error; err != nil {
		return nil, notFound(err, "project")
	}
	return &project, nil
}

func loadProject(tx *gorm.DB, id uint) (*models.Project, []uint, error) {
	var project models.Project
	if err := tx.First(&project, id).Error; err != nil {
		return nil, nil, notFound(err, "project")
	}
	var memberIDs []uint
	if err := tx.Model(&models.ProjectMember{}).Where("project_id = ?", id).Order("user_id").Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, nil, err
	}
	return &project, memberIDs, nil
}

func addMemberships(tx *gorm.DB, projectID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.ProjectMember, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, models.ProjectMember{ProjectID: projectID, UserID: uid})
	}
	return tx.Create(&rows).Error
}

func removeMemberships(tx *gorm.DB, projectID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	return tx.Where("project_id = ? AND user_id IN ?", projectID, userIDs).Delete(&models.ProjectMember{}).Error
}

// touch bumps updated_at for changes stored outside the projects row.
func touch(tx *gorm.DB, project *models.Project) error {
	return tx.Model(project).Update("updated_at", tx.NowFunc()).Error
}

func recordMembers(tx *gorm.DB, rec *audit.Recorder, projectID uint, actor string, action models.HistoryAction, userIDs []uint) error {
	names, err := userNames(tx, userIDs)
	if err != nil {
		return err
	}
	verb, key := "added members", "added"
	if action == models.ActionMembersRemoved {
		verb, key = "removed members", "removed"
	}
	ids := joinIDs(userIDs)
	entry := audit.Entry{
		Action:      action,
		Field:       "members",
		Changes:     map[string]interface{}{key: userIDs},
		Description: fmt.Sprintf("%s %s: %s", actor, verb, names),
	}
	if action == models.ActionMembersAdded {
		entry.New = &ids
	} else {
		entry.Old = &ids
	}
	_, err = rec.RecordProject(projectID, entry)
	return err
}

func subtract(from, remove []uint) []uint {
	drop := make(map[uint]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	out := make([]uint, 0, len(from))
	for _, id := range from {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
