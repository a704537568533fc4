package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/metrics"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TimeLogService struct {
	db     *gorm.DB
	authz  *authz.Authorizer
	events Publisher
}

func NewTimeLogService(db *gorm.DB, authorizer *authz.Authorizer, events Publisher) *TimeLogService {
	return &TimeLogService{db: db, authz: authorizer, events: events}
}

type LogTimeRequest struct {
	Hours       float64    `json:"hours" binding:"required"`
	LogDate     *time.Time `json:"log_date"`
	Description string     `json:"description"`
}

// LogTimeResult is the created log together with the task's new total.
type LogTimeResult struct {
	TimeLog     *models.TimeLog `json:"time_log"`
	ActualHours float64         `json:"actual_hours"`
}

// LogTime appends a time log and adds its hours to the task's actual hours.
// The increment happens in SQL so concurrent logs on the same task add up.
func (s *TimeLogService) LogTime(ctx context.Context, p authz.Principal, taskID uint, req *LogTimeRequest) (*LogTimeResult, error) {
	if req.Hours <= 0 {
		return nil, response.NewValidationFailed("hours must be greater than 0", map[string]float64{"hours": req.Hours})
	}

	result := &LogTimeResult{}
	var rec *audit.Recorder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(p, authz.TimeLogCreate, authz.TaskTarget(task)); err != nil {
			return err
		}

		logDate := time.Now()
		if req.LogDate != nil {
			logDate = *req.LogDate
		}
		entry := &models.TimeLog{
			TaskID:      task.ID,
			UserID:      actorID(p),
			Hours:       req.Hours,
			LogDate:     logDate,
			Description: req.Description,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		// The locked read and the SQL increment keep old and new exactly
		// req.Hours apart while other logs land on the same task.
		var old float64
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&models.Task{}).
			Where("id = ?", task.ID).Pluck("actual_hours", &old).Error; err != nil {
			return err
		}
		if err := tx.Model(task).Update("actual_hours", gorm.Expr("actual_hours + ?", req.Hours)).Error; err != nil {
			return err
		}
		var stored float64
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Pluck("actual_hours", &stored).Error; err != nil {
			return err
		}

		name, err := actorName(tx, p)
		if err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, actorID(p))
		oldStr, newStr := audit.CanonicalPtr(old), audit.CanonicalPtr(stored)
		if _, err := rec.RecordTask(task, audit.Entry{
			Action:  models.ActionUpdated,
			Field:   "actual_hours",
			Old:     oldStr,
			New:     newStr,
			Changes: map[string]interface{}{"actual_hours": []interface{}{*oldStr, *newStr}},
			Description: fmt.Sprintf("%s logged %sh on task '%s'",
				name, *audit.CanonicalPtr(req.Hours), task.Title),
		}); err != nil {
			return err
		}

		result.TimeLog = entry
		result.ActualHours = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.HoursLogged.Add(req.Hours)
	publish(ctx, s.events, rec)
	return result, nil
}

// List returns the task's time logs, newest log date first.
func (s *TimeLogService) List(p authz.Principal, taskID uint, req *PageRequest) (*ListResponse[models.TimeLog], error) {
	if _, err := NewVisibilityService(s.db).GetTask(p, taskID); err != nil {
		return nil, err
	}
	query := s.db.Model(&models.TimeLog{}).Where("task_id = ?", taskID)
	return paginate[models.TimeLog](query, req, "log_date DESC, id DESC", "User")
}
