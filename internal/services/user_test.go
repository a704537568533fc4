package services

import (
	"context"
	"testing"

	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/optional"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreate(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.db, f.authz)

	user, err := users.Create(context.Background(), f.admin, &CreateUserRequest{
		Name: "Neo", Email: "Neo@Example.com", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleDeveloper, user.Role)
	assert.Equal(t, "neo@example.com", user.Email)
	require.NotNil(t, user.CreatedByID)
	assert.Equal(t, f.admin.ID, *user.CreatedByID)

	_, err = users.Create(context.Background(), f.admin, &CreateUserRequest{Name: "Neo", Email: "neo@example.com", Password: "secret123"})
	assert.Equal(t, response.KindConflict, response.KindOf(err))

	_, err = users.Create(context.Background(), f.admin, &CreateUserRequest{Name: "X", Email: "x@example.com", Password: "secret123", Role: "root"})
	assert.True(t, response.IsValidation(err))

	_, err = users.Create(context.Background(), f.manager, &CreateUserRequest{Name: "Y", Email: "y@example.com", Password: "secret123"})
	assert.True(t, response.IsForbidden(err))
}

func TestUserUpdateProfile(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.db, f.authz)

	user, err := users.UpdateProfile(context.Background(), f.dev, &UpdateProfileRequest{Name: optional.Of(" Devon ")})
	require.NoError(t, err)
	assert.Equal(t, "Devon", user.Name)
	assert.Equal(t, "dev@example.com", user.Email)

	_, err = users.UpdateProfile(context.Background(), f.dev, &UpdateProfileRequest{Email: optional.Of("DORA@example.com")})
	assert.Equal(t, response.KindConflict, response.KindOf(err))

	_, err = users.UpdateProfile(context.Background(), f.dev, &UpdateProfileRequest{Name: optional.Null[string]()})
	assert.True(t, response.IsValidation(err))

	user, err = users.UpdateProfile(context.Background(), f.dev, &UpdateProfileRequest{Email: optional.Of("dev@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email)
}

func TestUserToggleActivation_NotSelf(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.db, f.authz)

	_, err := users.ToggleActivation(context.Background(), f.admin, f.admin.ID)
	assert.True(t, response.IsForbidden(err))
	_, err = users.ToggleActivation(context.Background(), f.manager, f.dev.ID)
	assert.True(t, response.IsForbidden(err))

	user, err := users.ToggleActivation(context.Background(), f.admin, f.dev.ID)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	user, err = users.ToggleActivation(context.Background(), f.admin, f.dev.ID)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
}

func TestUserDelete_KeepsHistory(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.db, f.authz)
	project := f.project(t, "Alpha", f.dev.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))
	_, err := f.timeLogs().LogTime(context.Background(), f.dev, task.ID, &LogTimeRequest{Hours: 1})
	require.NoError(t, err)

	assert.True(t, response.IsForbidden(users.Delete(context.Background(), f.admin, f.admin.ID)))
	require.NoError(t, users.Delete(context.Background(), f.admin, f.dev.ID))

	assert.Zero(t, f.count(t, &models.User{}, "id = ?", f.dev.ID))
	assert.Zero(t, f.count(t, &models.ProjectMember{}, "user_id = ?", f.dev.ID))

	reloaded, err := loadTask(f.db, task.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssigneeID)

	var log models.TimeLog
	require.NoError(t, f.db.Where("task_id = ?", task.ID).First(&log).Error)
	assert.Nil(t, log.UserID)
	assert.Equal(t, int64(2), f.count(t, &models.TaskHistory{}, "task_id = ?", task.ID))
	assert.Equal(t, int64(1), f.count(t, &models.SystemLog{}, "module = ? AND action = ?", "user", "delete"))

	assert.True(t, response.IsNotFound(users.Delete(context.Background(), f.admin, f.dev.ID)))
}
