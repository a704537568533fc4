package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func newAuthorizer(t *testing.T) *authz.Authorizer {
	t.Helper()
	a, err := authz.New()
	require.NoError(t, err)
	return a
}

// fixture seeds one user per role plus a second developer.
type fixture struct {
	db      *gorm.DB
	authz   *authz.Authorizer
	events  *capturePublisher
	admin   authz.Principal
	manager authz.Principal
	dev     authz.Principal
	dev2    authz.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)
	f := &fixture{db: db, authz: newAuthorizer(t), events: &capturePublisher{}}
	f.admin = f.user(t, "Ada", "ada@example.com", models.RoleAdmin)
	f.manager = f.user(t, "Max", "max@example.com", models.RoleManager)
	f.dev = f.user(t, "Dev", "dev@example.com", models.RoleDeveloper)
	f.dev2 = f.user(t, "Dora", "dora@example.com", models.RoleDeveloper)
	return f
}

func (f *fixture) user(t *testing.T, name, email string, role models.Role) authz.Principal {
	t.Helper()
	hashed, err := utils.HashPassword("secret123")
	require.NoError(t, err)
	u := models.User{Name: name, Email: email, Password: hashed, Role: role, IsActive: true}
	require.NoError(t, f.db.Create(&u).Error)
	return authz.Principal{ID: u.ID, Role: role}
}

func (f *fixture) projects() *ProjectService {
	return NewProjectService(f.db, f.authz, f.events)
}

func (f *fixture) tasks() *TaskService {
	return NewTaskService(f.db, f.authz, f.events)
}

func (f *fixture) timeLogs() *TimeLogService {
	return NewTimeLogService(f.db, f.authz, f.events)
}

// project creates a project as admin with the given members.
func (f *fixture) project(t *testing.T, title string, members ...uint) *models.Project {
	t.Helper()
	p, err := f.projects().Create(context.Background(), f.admin, &CreateProjectRequest{Title: title, MemberIDs: members})
	require.NoError(t, err)
	return p
}

func (f *fixture) task(t *testing.T, projectID uint, title string, assignee *uint) *models.Task {
	t.Helper()
	task, err := f.tasks().Create(context.Background(), f.admin, &CreateTaskRequest{
		ProjectID:  projectID,
		Title:      title,
		AssigneeID: assignee,
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func uintPtr(v uint) *uint { return &v }

type capturePublisher struct {
	mu      sync.Mutex
	written []audit.Written
}

func (c *capturePublisher) Publish(_ context.Context, written []audit.Written) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, written...)
}

func (c *capturePublisher) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}
