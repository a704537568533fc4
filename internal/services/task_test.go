package services

import (
	"context"
	"testing"
	"time"

	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/optional"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskHistory(t *testing.T, f *fixture, taskID uint) []models.TaskHistory {
	t.Helper()
	var rows []models.TaskHistory
	require.NoError(t, f.db.Where("task_id = ?", taskID).Order("id").Find(&rows).Error)
	return rows
}

func TestTaskCreate_DefaultsAndHistory(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)

	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))

	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, models.TaskPriorityMedium, task.Priority)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "Dev", task.Assignee.Name)

	rows := taskHistory(t, f, task.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionCreated, rows[0].Action)
	assert.Equal(t, int64(1), f.count(t, &models.ProjectHistory{}, "project_id = ? AND action = ?", project.ID, models.ActionTaskCreated))
}

func TestTaskCreate_Validation(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)

	tests := []struct {
		name string
		req  CreateTaskRequest
	}{
		{"blank title", CreateTaskRequest{ProjectID: project.ID, Title: "   "}},
		{"bad status", CreateTaskRequest{ProjectID: project.ID, Title: "x", Status: "blocked"}},
		{"bad priority", CreateTaskRequest{ProjectID: project.ID, Title: "x", Priority: "urgent"}},
		{"negative estimate", CreateTaskRequest{ProjectID: project.ID, Title: "x", EstimatedHours: -1}},
		{"assignee not member", CreateTaskRequest{ProjectID: project.ID, Title: "x", AssigneeID: uintPtr(f.dev2.ID)}},
		{"unknown assignee", CreateTaskRequest{ProjectID: project.ID, Title: "x", AssigneeID: uintPtr(999)}},
	}
	for _, tt := range tests {
		req := tt.req
		_, err := f.tasks().Create(context.Background(), f.admin, &req)
		assert.True(t, response.IsValidation(err), tt.name)
	}
	assert.Zero(t, f.count(t, &models.Task{}, "1 = 1"))
}

func TestTaskCreate_DeveloperForbidden(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)

	_, err := f.tasks().Create(context.Background(), f.dev, &CreateTaskRequest{ProjectID: project.ID, Title: "x"})
	assert.True(t, response.IsForbidden(err))
}

func TestTaskUpdateStatus_DeveloperOnOthersTaskForbidden(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID, f.dev2.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))
	before := len(taskHistory(t, f, task.ID))

	_, err := f.tasks().UpdateStatus(context.Background(), f.dev2, task.ID, models.TaskStatusDone)
	assert.True(t, response.IsForbidden(err))
	assert.Len(t, taskHistory(t, f, task.ID), before)

	updated, err := f.tasks().UpdateStatus(context.Background(), f.dev, task.ID, models.TaskStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, updated.Status)

	rows := taskHistory(t, f, task.ID)
	require.Len(t, rows, before+1)
	last := rows[len(rows)-1]
	assert.Equal(t, models.ActionStatusChanged, last.Action)
	assert.Equal(t, "todo", *last.OldValue)
	assert.Equal(t, "in_progress", *last.NewValue)
	assert.Equal(t, "Dev moved task 'Build' from 'todo' to 'in_progress'", last.Description)
}

func TestTaskUpdate_DeveloperCannotSmuggleFields(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))

	// The title is unchanged but its presence still needs task:update.
	_, err := f.tasks().Update(context.Background(), f.dev, task.ID, &UpdateTaskRequest{
		Title:  optional.Of("Build"),
		Status: optional.Of(models.TaskStatusDone),
	})
	assert.True(t, response.IsForbidden(err))

	reloaded, err := loadTask(f.db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, reloaded.Status)
}

func TestTaskUpdate_NoOpWritesNothing(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))
	before := len(taskHistory(t, f, task.ID))

	time.Sleep(10 * time.Millisecond)
	updated, err := f.tasks().Update(context.Background(), f.manager, task.ID, &UpdateTaskRequest{
		Title:      optional.Of(" Build "),
		Priority:   optional.Of(models.TaskPriorityMedium),
		AssigneeID: optional.Of(f.dev.ID),
	})
	require.NoError(t, err)
	assert.Len(t, taskHistory(t, f, task.ID), before)
	assert.True(t, task.UpdatedAt.Equal(updated.UpdatedAt))
}

func TestTaskUpdate_AssignAndClear(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID, f.dev2.ID)
	task := f.task(t, project.ID, "Build", nil)

	updated, err := f.tasks().Update(context.Background(), f.manager, task.ID, &UpdateTaskRequest{AssigneeID: optional.Of(f.dev2.ID)})
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, f.dev2.ID, *updated.AssigneeID)

	updated, err = f.tasks().Update(context.Background(), f.manager, task.ID, &UpdateTaskRequest{AssigneeID: optional.Null[uint]()})
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID)

	rows := taskHistory(t, f, task.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, models.ActionAssigned, rows[1].Action)
	assert.Nil(t, rows[1].OldValue)
	assert.Equal(t, "Max assigned task 'Build' to Dora", rows[1].Description)
	assert.Equal(t, models.ActionAssigned, rows[2].Action)
	assert.Nil(t, rows[2].NewValue)
	assert.Equal(t, "Max unassigned task 'Build'", rows[2].Description)
}

func TestTaskUpdate_RejectsNullStatus(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha")
	task := f.task(t, project.ID, "Build", nil)

	_, err := f.tasks().Update(context.Background(), f.admin, task.ID, &UpdateTaskRequest{Status: optional.Null[models.TaskStatus]()})
	assert.True(t, response.IsValidation(err))
}

func TestTaskUpdateDeadline(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))

	_, err := f.tasks().UpdateDeadline(context.Background(), f.dev, task.ID, nil)
	assert.True(t, response.IsValidation(err))

	due := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	updated, err := f.tasks().UpdateDeadline(context.Background(), f.dev, task.ID, &due)
	require.NoError(t, err)
	require.NotNil(t, updated.DueDate)
	assert.True(t, due.Equal(*updated.DueDate))

	rows := taskHistory(t, f, task.ID)
	last := rows[len(rows)-1]
	assert.Equal(t, "due_date", *last.FieldName)
	assert.Nil(t, last.OldValue)
	assert.Equal(t, "2026-03-01T17:00:00Z", *last.NewValue)
}

func TestTaskDelete_RecordsOnProject(t *testing.T) {
	f := newFixture(t)
	project := f.project(t, "Alpha", f.dev.ID)
	task := f.task(t, project.ID, "Build", uintPtr(f.dev.ID))

	assert.True(t, response.IsForbidden(f.tasks().Delete(context.Background(), f.dev, task.ID)))
	require.NoError(t, f.tasks().Delete(context.Background(), f.manager, task.ID))

	assert.Zero(t, f.count(t, &models.Task{}, "id = ?", task.ID))
	assert.Zero(t, f.count(t, &models.TaskHistory{}, "task_id = ?", task.ID))
	assert.Equal(t, int64(1), f.count(t, &models.ProjectHistory{}, "project_id = ? AND action = ?", project.ID, models.ActionTaskDeleted))
	assert.True(t, response.IsNotFound(f.tasks().Delete(context.Background(), f.manager, task.ID)))
}
