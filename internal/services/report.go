package services

import (
	"math"
	"time"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

// ReportService aggregates task progress over the projects a manager or
// admin can see.
type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

type StatusCount struct {
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

type TaskCounts struct {
	TotalTasks int64                              `json:"total_tasks"`
	ByStatus   map[models.TaskStatus]StatusCount `json:"by_status"`
}

type ProjectProgress struct {
	ProjectID       uint    `json:"project_id"`
	ProjectTitle    string  `json:"project_title"`
	TotalTasks      int64   `json:"total_tasks"`
	Todo            int64   `json:"todo"`
	InProgress      int64   `json:"in_progress"`
	InReview        int64   `json:"in_review"`
	Done            int64   `json:"done"`
	ProgressPercent float64 `json:"progress_percent"`
}

type OverdueProject struct {
	ProjectID    uint   `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	OverdueTasks int64  `json:"overdue_tasks"`
}

type SummaryTotals struct {
	Projects int64 `json:"projects"`
	Tasks    int64 `json:"tasks"`
	Users    int64 `json:"users"`
}

type Summary struct {
	Totals                 SummaryTotals `json:"totals"`
	CompletedTasks         int64         `json:"completed_tasks"`
	OverdueTasks           int64         `json:"overdue_tasks"`
	OverallProgressPercent float64       `json:"overall_progress_percent"`
}

type statusRow struct {
	ProjectID uint
	Status    models.TaskStatus
	Count     int64
}

func requireReporter(p authz.Principal) error {
	switch p.Role {
	case models.RoleAdmin, models.RoleManager:
		return nil
	default:
		return response.NewForbidden()
	}
}

// visibleProjectIDs is a subquery of the project ids p may report on.
func (s *ReportService) visibleProjectIDs(p authz.Principal) (*gorm.DB, error) {
	return scopeProjects(s.db, s.db.Model(&models.Project{}).Select("projects.id"), p)
}

func (s *ReportService) statusRows(projectIDs *gorm.DB) ([]statusRow, error) {
	var rows []statusRow
	err := s.db.Model(&models.Task{}).
		Select("project_id, status, COUNT(*) AS count").
		Where("project_id IN (?)", projectIDs).
		Group("project_id, status").
		Scan(&rows).Error
	return rows, err
}

// TaskCounts breaks the visible tasks down by status. Every status is
// present, zero counts included.
func (s *ReportService) TaskCounts(p authz.Principal) (*TaskCounts, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	visible, err := s.visibleProjectIDs(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.statusRows(visible)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int64, len(models.TaskStatuses))
	var total int64
	for _, r := range rows {
		counts[r.Status] += r.Count
		total += r.Count
	}

	result := &TaskCounts{TotalTasks: total, ByStatus: make(map[models.TaskStatus]StatusCount, len(models.TaskStatuses))}
	for _, status := range models.TaskStatuses {
		result.ByStatus[status] = StatusCount{Count: counts[status], Percent: percent(counts[status], total)}
	}
	return result, nil
}

// ProjectProgress reports one project; the project must be visible to p.
func (s *ReportService) ProjectProgress(p authz.Principal, projectID uint) (*ProjectProgress, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	project, err := NewVisibilityService(s.db).GetProject(p, projectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.statusRows(s.db.Model(&models.Project{}).Select("id").Where("id = ?", project.ID))
	if err != nil {
		return nil, err
	}
	progress := &ProjectProgress{ProjectID: project.ID, ProjectTitle: project.Title}
	for _, r := range rows {
		progress.add(r.Status, r.Count)
	}
	progress.finish()
	return progress, nil
}

// ProjectsProgress reports every visible project, including those without
// tasks, ordered by id.
func (s *ReportService) ProjectsProgress(p authz.Principal) ([]ProjectProgress, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	query, err := scopeProjects(s.db, s.db.Model(&models.Project{}), p)
	if err != nil {
		return nil, err
	}
	var projects []models.Project
	if err := query.Select("projects.id", "projects.title").Order("projects.id").Find(&projects).Error; err != nil {
		return nil, err
	}
	visible, _ := s.visibleProjectIDs(p)
	rows, err := s.statusRows(visible)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*ProjectProgress, len(projects))
	out := make([]ProjectProgress, len(projects))
	for i, project := range projects {
		out[i] = ProjectProgress{ProjectID: project.ID, ProjectTitle: project.Title}
		byID[project.ID] = &out[i]
	}
	for _, r := range rows {
		if pp, ok := byID[r.ProjectID]; ok {
			pp.add(r.Status, r.Count)
		}
	}
	for i := range out {
		out[i].finish()
	}
	return out, nil
}

// OverdueByProject counts tasks past due and not done at now, per visible
// project. Projects without overdue tasks are omitted.
func (s *ReportService) OverdueByProject(p authz.Principal, now time.Time) ([]OverdueProject, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	visible, err := s.visibleProjectIDs(p)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueProject, 0)
	err = s.db.Model(&models.Task{}).
		Select("projects.id AS project_id, projects.title AS project_title, COUNT(tasks.id) AS overdue_tasks").
		Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("tasks.project_id IN (?)", visible).
		Where("tasks.due_date < ? AND tasks.status <> ?", now, models.TaskStatusDone).
		Group("projects.id, projects.title").
		Order("overdue_tasks DESC, projects.id").
		Scan(&out).Error
	return out, err
}

func (s *ReportService) Summary(p authz.Principal, now time.Time) (*Summary, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	visible, err := s.visibleProjectIDs(p)
	if err != nil {
		return nil, err
	}

	var summary Summary
	if err := s.db.Table("(?) AS visible", visible).Count(&summary.Totals.Projects).Error; err != nil {
		return nil, err
	}
	tasks := func() *gorm.DB {
		return s.db.Model(&models.Task{}).Where("project_id IN (?)", visible)
	}
	if err := tasks().Count(&summary.Totals.Tasks).Error; err != nil {
		return nil, err
	}
	if err := tasks().Where("status = ?", models.TaskStatusDone).Count(&summary.CompletedTasks).Error; err != nil {
		return nil, err
	}
	if err := tasks().Where("due_date < ? AND status <> ?", now, models.TaskStatusDone).Count(&summary.OverdueTasks).Error; err != nil {
		return nil, err
	}
	users, err := scopeUsers(s.db.Model(&models.User{}), p)
	if err != nil {
		return nil, err
	}
	if err := users.Count(&summary.Totals.Users).Error; err != nil {
		return nil, err
	}
	summary.OverallProgressPercent = percent(summary.CompletedTasks, summary.Totals.Tasks)
	return &summary, nil
}

func (pp *ProjectProgress) add(status models.TaskStatus, n int64) {
	switch status {
	case models.TaskStatusTodo:
		pp.Todo += n
	case models.TaskStatusInProgress:
		pp.InProgress += n
	case models.TaskStatusInReview:
		pp.InReview += n
	case models.TaskStatusDone:
		pp.Done += n
	}
	pp.TotalTasks += n
}

func (pp *ProjectProgress) finish() {
	pp.ProgressPercent = percent(pp.Done, pp.TotalTasks)
}

// percent is rounded to two decimals; an empty total is 0.
func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
