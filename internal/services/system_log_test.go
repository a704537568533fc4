package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedLogs(t *testing.T, svc *SystemLogService) {
	t.Helper()
	now := time.Now()
	logs := []models.SystemLog{
		{Level: "info", Module: "projects", Action: "create", Message: "[Audit] ada@example.com POST /api/projects -> OK", CreatedAt: now.Add(-time.Hour)},
		{Level: "info", Module: "projects", Action: "members.create", Message: "[Audit] max@example.com POST /api/projects/1/members -> OK", CreatedAt: now.Add(-30 * time.Minute)},
		{Level: "error", Module: "tasks", Action: "status.update", Message: "[Audit] dev@example.com PUT /api/tasks/3/status -> Failed", CreatedAt: now},
		{Level: "warning", Module: "auth", Action: "login", Message: "old", CreatedAt: now.AddDate(0, 0, -40)},
	}
	require.NoError(t, svc.db.Create(&logs).Error)
}

func TestSystemLogService_ListFilters(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))
	seedLogs(t, svc)

	tests := []struct {
		name string
		req  SystemLogListRequest
		want int64
	}{
		{"all", SystemLogListRequest{}, 4},
		{"level", SystemLogListRequest{Level: "error"}, 1},
		{"module", SystemLogListRequest{Module: "projects"}, 2},
		{"action substring", SystemLogListRequest{Action: "create"}, 2},
		{"search", SystemLogListRequest{Search: "max@example.com"}, 1},
		{"start date", SystemLogListRequest{StartDate: time.Now().AddDate(0, 0, -1).Format("2006-01-02")}, 3},
		{"end date", SystemLogListRequest{EndDate: time.Now().AddDate(0, 0, -10).Format("2006-01-02")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			list, err := svc.List(&req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, list.Total)
		})
	}

	list, err := svc.List(&SystemLogListRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, list.Items)
	assert.Equal(t, "tasks", list.Items[0].Module, "newest first")
}

func TestSystemLogService_ListRejectsBadFilters(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))

	for _, req := range []SystemLogListRequest{
		{StartDate: "yesterday"},
		{EndDate: "2026-13-01"},
		{StartDate: "2026-01-10", EndDate: "2026-01-09"},
		{Level: "debug"},
	} {
		_, err := svc.List(&req)
		assert.True(t, response.IsValidation(err), "%+v", req)
	}
}

func TestSystemLogService_GetModules(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))
	seedLogs(t, svc)

	modules, err := svc.GetModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "projects", "tasks"}, modules)
}

func TestSystemLogService_CleanupOldLogs(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))
	seedLogs(t, svc)

	deleted, err := svc.CleanupOldLogs(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = svc.CleanupOldLogs(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	modules, err := svc.GetModules()
	require.NoError(t, err)
	assert.NotContains(t, modules, "auth")
}

func TestWriteSystemLog_DefaultsLevelAndRollsBack(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, writeSystemLog(db, &models.SystemLog{Module: "users", Action: "delete", Message: "removed"}))
	var entry models.SystemLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "info", entry.Level)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := writeSystemLog(tx, &models.SystemLog{Module: "users", Action: "delete"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&models.SystemLog{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSystemLogService_Record(t *testing.T) {
	db := setupDB(t)
	svc := NewSystemLogService(db)
	uid := uint(7)

	svc.Record(context.Background(), &models.SystemLog{Module: "auth", Action: "login", UserID: &uid, Extra: map[string]interface{}{"audit": true}})
	svc.Record(context.Background(), &models.SystemLog{Level: models.LogLevelError, Module: "auth", Action: "login"})

	var logs []models.SystemLog
	require.NoError(t, db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogLevelInfo, logs[0].Level)
	assert.Equal(t, uid, *logs[0].UserID)
	assert.Equal(t, true, logs[0].Extra["audit"])
	assert.Equal(t, models.LogLevelError, logs[1].Level)
}

func TestSystemLogService_Retention(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))
	seedLogs(t, svc)

	require.NoError(t, svc.StartRetention(0))
	assert.Nil(t, svc.cron)

	require.NoError(t, svc.StartRetention(30))
	require.NotNil(t, svc.cron)
	assert.Len(t, svc.cron.Entries(), 1)
	svc.StopRetention()
	svc.StopRetention()

	var n int64
	require.NoError(t, svc.db.Model(&models.SystemLog{}).Count(&n).Error)
	assert.Equal(t, int64(3), n, "the startup sweep already ran")
}

func TestSystemLogService_CleanupUsesClock(t *testing.T) {
	svc := NewSystemLogService(setupDB(t))
	seedLogs(t, svc)
	svc.now = func() time.Time { return time.Now().AddDate(0, 0, 60) }

	deleted, err := svc.CleanupOldLogs(30)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}
