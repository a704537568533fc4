package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// logCleanupSpec runs retention daily during low traffic.
const logCleanupSpec = "30 3 * * *"

// writeSystemLog writes inside the caller's transaction so the log row
// commits or rolls back with the change it describes.
func writeSystemLog(tx *gorm.DB, entry *models.SystemLog) error {
	if entry.Level == "" {
		entry.Level = models.LogLevelInfo
	}
	return tx.Create(entry).Error
}

// SystemLogService stores request audit lines and serves the admin log
// views. Retention runs on its own cron schedule.
type SystemLogService struct {
	db  *gorm.DB
	now func() time.Time

	cron *cron.Cron
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db, now: time.Now}
}

// Record stores entry outside any transaction. A failed write is logged
// and never surfaces to the request that produced it.
func (s *SystemLogService) Record(ctx context.Context, entry *models.SystemLog) {
	if err := writeSystemLog(s.db.WithContext(ctx), entry); err != nil {
		logger.Warn().Err(err).Str("module", entry.Module).Str("action", entry.Action).Msg("write system log failed")
	}
}

type SystemLogListRequest struct {
	PageRequest
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

func validLogLevel(level string) bool {
	switch level {
	case models.LogLevelInfo, models.LogLevelWarning, models.LogLevelError:
		return true
	}
	return false
}

// List filters logs newest first. Action and Search match substrings.
func (s *SystemLogService) List(req *SystemLogListRequest) (*ListResponse[models.SystemLog], error) {
	if req.Level != "" && !validLogLevel(req.Level) {
		return nil, response.NewValidationFailed("unknown log level", map[string]string{"level": req.Level})
	}
	query, err := dayRange(s.db.Model(&models.SystemLog{}), "created_at", req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}
	return paginate[models.SystemLog](query, &req.PageRequest, "created_at DESC, id DESC")
}

// GetModules lists the distinct modules present, sorted.
func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	err := s.db.Model(&models.SystemLog{}).Distinct("module").Order("module").Pluck("module", &modules).Error
	return modules, err
}

// CleanupOldLogs deletes logs older than retentionDays and returns the
// count. Zero or less keeps everything.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	return res.RowsAffected, res.Error
}

// StartRetention sweeps once now and then daily. It does nothing when
// retentionDays keeps logs forever.
func (s *SystemLogService) StartRetention(retentionDays int) error {
	if retentionDays <= 0 {
		logger.Info().Msg("System log retention disabled")
		return nil
	}
	sweep := func() {
		deleted, err := s.CleanupOldLogs(retentionDays)
		if err != nil {
			logger.Error().Err(err).Msg("System log cleanup failed")
			return
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("System logs cleaned up")
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(logCleanupSpec, sweep); err != nil {
		return fmt.Errorf("schedule log cleanup: %w", err)
	}
	sweep()
	c.Start()
	s.cron = c
	return nil
}

// StopRetention waits for a running sweep to finish.
func (s *SystemLogService) StopRetention() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}
