package services

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOverdueService(f *fixture, enabled bool) *OverdueReportService {
	return NewOverdueReportService(f.db, &config.ReportConfig{Enabled: enabled, Time: "09:00", Country: CountryNone}, NewHolidayService())
}

func (f *fixture) taskDue(t *testing.T, projectID uint, title string, due time.Time, status models.TaskStatus) *models.Task {
	t.Helper()
	task, err := f.tasks().Create(context.Background(), f.admin, &CreateTaskRequest{
		ProjectID: projectID,
		Title:     title,
		Status:    status,
		DueDate:   &due,
	})
	require.NoError(t, err)
	return task
}

func idKey(id uint) string { return strconv.FormatUint(uint64(id), 10) }

// day returns the given hour of a date in the local zone.
func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.Local)
}

// overdueFixture seeds, relative to Wednesday 2026-01-14 10:00:
// "Alpha" (manager is a member) with two overdue tasks, 2 and 3 business
// days late, plus a done one and a future one; "Beta" (no manager) with
// one overdue task; and an archived project with one overdue task.
func overdueFixture(t *testing.T) (*fixture, *models.Project, *models.Project, time.Time) {
	f := newFixture(t)
	alpha := f.project(t, "Alpha", f.manager.ID)
	f.taskDue(t, alpha.ID, "Mon", day(2026, 1, 12, 9), models.TaskStatusTodo)
	f.taskDue(t, alpha.ID, "Fri", day(2026, 1, 9, 9), models.TaskStatusInProgress)
	f.taskDue(t, alpha.ID, "Done", day(2026, 1, 5, 9), models.TaskStatusDone)
	f.taskDue(t, alpha.ID, "Later", day(2026, 1, 20, 9), models.TaskStatusTodo)

	beta := f.project(t, "Beta")
	f.taskDue(t, beta.ID, "Tue", day(2026, 1, 13, 9), models.TaskStatusInReview)

	old := f.project(t, "Old")
	f.taskDue(t, old.ID, "Ancient", day(2025, 12, 1, 9), models.TaskStatusTodo)
	_, err := f.projects().SetArchived(context.Background(), f.admin, old.ID, true)
	require.NoError(t, err)

	return f, alpha, beta, day(2026, 1, 14, 10)
}

func TestOverdueReport_Generate(t *testing.T) {
	f, alpha, beta, now := overdueFixture(t)
	svc := newOverdueService(f, false)

	report, err := svc.Generate(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalProjects)
	assert.Equal(t, 3, report.TotalOverdue)
	assert.Equal(t, 3, report.MaxLateDays)
	assert.True(t, report.ReportDate.Equal(day(2026, 1, 14, 0)))

	alphaEntry, ok := report.Projects[idKey(alpha.ID)].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alpha", alphaEntry["title"])
	assert.Equal(t, 2, jsonInt(alphaEntry["overdue"]))
	assert.Equal(t, 3, jsonInt(alphaEntry["max_late_days"]))
	assert.Len(t, alphaEntry["task_ids"], 2)

	betaEntry, ok := report.Projects[idKey(beta.ID)].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1, jsonInt(betaEntry["max_late_days"]))
}

func TestOverdueReport_GenerateReplacesSameDate(t *testing.T) {
	f, alpha, _, now := overdueFixture(t)
	svc := newOverdueService(f, false)

	_, err := svc.Generate(context.Background(), now)
	require.NoError(t, err)

	f.taskDue(t, alpha.ID, "Thu", day(2026, 1, 8, 9), models.TaskStatusTodo)
	report, err := svc.Generate(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.count(t, &models.OverdueReport{}, "1 = 1"))
	assert.Equal(t, 4, report.TotalOverdue)
	assert.Equal(t, 4, report.MaxLateDays)
}

func TestOverdueReport_GetTrimsForManager(t *testing.T) {
	f, alpha, _, now := overdueFixture(t)
	svc := newOverdueService(f, false)
	_, err := svc.Generate(context.Background(), now)
	require.NoError(t, err)

	full, err := svc.Get(f.admin, "2026-01-14")
	require.NoError(t, err)
	assert.Equal(t, 2, full.TotalProjects)

	trimmed, err := svc.Get(f.manager, "2026-01-14")
	require.NoError(t, err)
	assert.Equal(t, 1, trimmed.TotalProjects)
	assert.Equal(t, 2, trimmed.TotalOverdue)
	assert.Equal(t, 3, trimmed.MaxLateDays)
	assert.Contains(t, trimmed.Projects, idKey(alpha.ID))

	_, err = svc.Get(f.dev, "2026-01-14")
	assert.True(t, response.IsForbidden(err))

	_, err = svc.Get(f.admin, "14/01/2026")
	assert.True(t, response.IsValidation(err))

	_, err = svc.Get(f.admin, "2026-01-15")
	assert.True(t, response.IsNotFound(err))
}

func TestOverdueReport_ListNewestFirst(t *testing.T) {
	f, _, _, now := overdueFixture(t)
	svc := newOverdueService(f, false)
	for _, offset := range []int{-2, -1, 0} {
		_, err := svc.Generate(context.Background(), now.AddDate(0, 0, offset))
		require.NoError(t, err)
	}

	list, err := svc.List(f.manager, &OverdueReportListRequest{StartDate: "2026-01-13"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Items, 2)
	assert.True(t, list.Items[0].ReportDate.After(list.Items[1].ReportDate))
	for _, r := range list.Items {
		assert.LessOrEqual(t, r.TotalProjects, 1)
	}
}

func TestOverdueReport_RunScheduled(t *testing.T) {
	f, _, _, now := overdueFixture(t)
	svc := newOverdueService(f, true)

	svc.now = func() time.Time { return day(2026, 1, 17, 9) } // Saturday
	report, err := svc.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, int64(0), f.count(t, &models.OverdueReport{}, "1 = 1"))

	svc.now = func() time.Time { return now }
	report, err = svc.RunScheduled(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.TotalOverdue)

	other := newOverdueService(f, true)
	other.instanceID = "other"
	other.now = svc.now
	report, err = other.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestJSONInt(t *testing.T) {
	assert.Equal(t, 4, jsonInt(json.Number("4")))
	assert.Equal(t, 0, jsonInt(json.Number("4.5")))
	assert.Equal(t, 3, jsonInt(float64(3)))
	assert.Equal(t, 2, jsonInt(2))
	assert.Equal(t, 0, jsonInt(nil))
	assert.Equal(t, 0, jsonInt("7"))
}

func TestAcquireSchedulerLock(t *testing.T) {
	db := setupDB(t)
	now := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)

	ok, err := acquireSchedulerLock(db, "job", "2026-01-14", "a", now, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = acquireSchedulerLock(db, "job", "2026-01-14", "b", now.Add(30*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = acquireSchedulerLock(db, "job", "2026-01-15", "b", now, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "different key is independent")

	ok, err = acquireSchedulerLock(db, "job", "2026-01-14", "b", now.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is taken over")

	var lock models.SchedulerLock
	require.NoError(t, db.Where("lock_name = ? AND lock_key = ?", "job", "2026-01-14").First(&lock).Error)
	assert.Equal(t, "b", lock.LockedBy)
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "09:00", want: "0 9 * * *"},
		{in: "18:45", want: "45 18 * * *"},
		{in: " 7:05 ", want: "5 7 * * *"},
		{in: "24:00", err: true},
		{in: "12:60", err: true},
		{in: "noon", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		got, err := cronExpr(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOverdueReport_SchedulerLifecycle(t *testing.T) {
	f := newFixture(t)

	disabled := newOverdueService(f, false)
	require.NoError(t, disabled.StartScheduler())
	assert.Nil(t, disabled.cronScheduler)
	disabled.StopScheduler()

	enabled := newOverdueService(f, true)
	require.NoError(t, enabled.StartScheduler())
	require.NotNil(t, enabled.cronScheduler)
	assert.NotZero(t, enabled.currentEntryID)
	enabled.StopScheduler()

	bad := NewOverdueReportService(f.db, &config.ReportConfig{Enabled: true, Time: "25:00"}, NewHolidayService())
	assert.Error(t, bad.StartScheduler())
}
