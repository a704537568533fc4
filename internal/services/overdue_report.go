package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const overdueLockName = "overdue_report"

// OverdueReportService snapshots overdue tasks once per workday.
type OverdueReportService struct {
	db             *gorm.DB
	cfg            *config.ReportConfig
	holidays       *HolidayService
	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID
	instanceID     string
	now            func() time.Time
}

func NewOverdueReportService(db *gorm.DB, cfg *config.ReportConfig, holidays *HolidayService) *OverdueReportService {
	host, _ := os.Hostname()
	return &OverdueReportService{
		db:         db,
		cfg:        cfg,
		holidays:   holidays,
		instanceID: fmt.Sprintf("%s-%d", host, os.Getpid()),
		now:        time.Now,
	}
}

type OverdueReportListRequest struct {
	PageRequest
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// overdueEntry is one project's slice of a report.
type overdueEntry struct {
	Title       string `json:"title"`
	Overdue     int    `json:"overdue"`
	MaxLateDays int    `json:"max_late_days"`
	TaskIDs     []uint `json:"task_ids"`
}

func (s *OverdueReportService) StartScheduler() error {
	if !s.cfg.Enabled {
		logger.Infof("[OverdueReport] Scheduler disabled")
		return nil
	}
	expr, err := cronExpr(s.cfg.Time)
	if err != nil {
		return err
	}

	s.cronScheduler = cron.New()
	entryID, err := s.cronScheduler.AddFunc(expr, func() {
		if _, err := s.RunScheduled(context.Background()); err != nil {
			logger.Errorf("[OverdueReport] Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule overdue report: %w", err)
	}
	s.currentEntryID = entryID
	s.cronScheduler.Start()
	logger.Infof("[OverdueReport] Scheduled at %s (cron: %s, calendar: %s)", s.cfg.Time, expr, s.country())
	return nil
}

func (s *OverdueReportService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// cronExpr turns "HH:MM" into a daily cron spec.
func cronExpr(hhmm string) (string, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid report time %q, want HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid report hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid report minute in %q", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *OverdueReportService) country() string {
	if s.cfg.Country == "" {
		return CountryNone
	}
	return strings.ToUpper(s.cfg.Country)
}

// RunScheduled generates today's report unless today is not a workday or
// another instance already holds today's lock. It returns nil, nil when
// it skipped.
func (s *OverdueReportService) RunScheduled(ctx context.Context) (*models.OverdueReport, error) {
	now := s.now()
	if !s.holidays.IsWorkday(now, s.country()) {
		logger.Infof("[OverdueReport] %s is not a workday, skipping", now.Format(dateLayout))
		return nil, nil
	}

	acquired, err := acquireSchedulerLock(s.db.WithContext(ctx), overdueLockName, now.Format(dateLayout), s.instanceID, now, 6*time.Hour)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.Infof("[OverdueReport] Lock held by another instance, skipping")
		return nil, nil
	}
	return s.Generate(ctx, now)
}

// Generate builds and stores the report for now's date, replacing an
// existing report for the same date.
func (s *OverdueReportService) Generate(ctx context.Context, now time.Time) (*models.OverdueReport, error) {
	type overdueRow struct {
		ID        uint
		ProjectID uint
		Title     string
		DueDate   time.Time
	}
	var rows []overdueRow
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Select("tasks.id, tasks.project_id, projects.title, tasks.due_date").
		Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("tasks.due_date < ? AND tasks.status <> ?", now, models.TaskStatusDone).
		Where("projects.archived = ?", false).
		Order("tasks.project_id, tasks.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	country := s.country()
	entries := map[uint]*overdueEntry{}
	report := &models.OverdueReport{ReportDate: dateOf(now)}
	for _, r := range rows {
		e, ok := entries[r.ProjectID]
		if !ok {
			e = &overdueEntry{Title: r.Title}
			entries[r.ProjectID] = e
		}
		late := s.holidays.WorkdaysBetween(r.DueDate, now, country)
		e.Overdue++
		e.TaskIDs = append(e.TaskIDs, r.ID)
		if late > e.MaxLateDays {
			e.MaxLateDays = late
		}
		if late > report.MaxLateDays {
			report.MaxLateDays = late
		}
		report.TotalOverdue++
	}

	report.TotalProjects = len(entries)
	report.Projects = datatypes.JSONMap{}
	for id, e := range entries {
		report.Projects[strconv.FormatUint(uint64(id), 10)] = map[string]interface{}{
			"title":         e.Title,
			"overdue":       e.Overdue,
			"max_late_days": e.MaxLateDays,
			"task_ids":      e.TaskIDs,
		}
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_projects", "total_overdue", "max_late_days", "projects"}),
	}).Create(report).Error
	if err != nil {
		return nil, fmt.Errorf("store overdue report: %w", err)
	}

	logger.Info().
		Str("date", report.ReportDate.Format(dateLayout)).
		Int("projects", report.TotalProjects).
		Int("overdue", report.TotalOverdue).
		Msg("overdue report generated")
	return s.byDate(report.ReportDate)
}

func (s *OverdueReportService) byDate(date time.Time) (*models.OverdueReport, error) {
	var report models.OverdueReport
	if err := s.db.Where("report_date = ?", date).First(&report).Error; err != nil {
		return nil, notFound(err, "overdue report")
	}
	return &report, nil
}

// List returns stored reports newest first, trimmed to p's projects.
func (s *OverdueReportService) List(p authz.Principal, req *OverdueReportListRequest) (*ListResponse[models.OverdueReport], error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	query, err := dayRange(s.db.Model(&models.OverdueReport{}), "report_date", req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	list, err := paginate[models.OverdueReport](query, &req.PageRequest, "report_date DESC")
	if err != nil {
		return nil, err
	}
	for i := range list.Items {
		if err := s.trim(p, &list.Items[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Get returns the report of a date given as YYYY-MM-DD.
func (s *OverdueReportService) Get(p authz.Principal, date string) (*models.OverdueReport, error) {
	if err := requireReporter(p); err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return nil, response.NewValidationFailed("date must be YYYY-MM-DD", map[string]string{"date": date})
	}
	report, err := s.byDate(day)
	if err != nil {
		return nil, err
	}
	if err := s.trim(p, report); err != nil {
		return nil, err
	}
	return report, nil
}

// trim drops projects p is not a member of and recomputes the totals.
func (s *OverdueReportService) trim(p authz.Principal, report *models.OverdueReport) error {
	if p.Role == models.RoleAdmin {
		return nil
	}
	var ids []uint
	if err := memberProjects(s.db, p.ID).Pluck("project_id", &ids).Error; err != nil {
		return err
	}
	visible := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		visible[strconv.FormatUint(uint64(id), 10)] = struct{}{}
	}

	kept := datatypes.JSONMap{}
	report.TotalOverdue, report.MaxLateDays = 0, 0
	for key, raw := range report.Projects {
		if _, ok := visible[key]; !ok {
			continue
		}
		kept[key] = raw
		entry, _ := raw.(map[string]interface{})
		report.TotalOverdue += jsonInt(entry["overdue"])
		if late := jsonInt(entry["max_late_days"]); late > report.MaxLateDays {
			report.MaxLateDays = late
		}
	}
	report.Projects = kept
	report.TotalProjects = len(kept)
	return nil
}

// jsonInt reads a count from a decoded JSON column. datatypes.JSONMap
// decodes numbers as json.Number.
func jsonInt(v interface{}) int {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// acquireSchedulerLock takes the named lock for key unless a live holder
// exists. Expired locks are taken over.
func acquireSchedulerLock(db *gorm.DB, name, key, holder string, now time.Time, ttl time.Duration) (bool, error) {
	acquired := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var lock models.SchedulerLock
		err := tx.Where("lock_name = ? AND lock_key = ?", name, key).First(&lock).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SchedulerLock{
				LockName:  name,
				LockKey:   key,
				LockedBy:  holder,
				LockedAt:  now,
				ExpiresAt: now.Add(ttl),
			})
			if res.Error != nil {
				return res.Error
			}
			acquired = res.RowsAffected == 1
			return nil
		case err != nil:
			return err
		case !lock.Expired(now):
			return nil
		}
		res := tx.Model(&models.SchedulerLock{}).
			Where("id = ? AND expires_at <= ?", lock.ID, now).
			Updates(map[string]interface{}{"locked_by": holder, "locked_at": now, "expires_at": now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}
