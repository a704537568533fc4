package models

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusDone       TaskStatus = "done"
)

var TaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	}
	return false
}

// Task is a unit of work inside a project
type Task struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ProjectID      uint         `gorm:"index;not null" json:"project_id"`
	Project        *Project     `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Title          string       `gorm:"size:255;not null" json:"title"`
	Description    string       `gorm:"type:text" json:"description"`
	Status         TaskStatus   `gorm:"size:20;index;not null;default:todo" json:"status"`
	Priority       TaskPriority `gorm:"size:20;not null;default:medium" json:"priority"`
	DueDate        *time.Time   `gorm:"index" json:"due_date"`
	AssigneeID     *uint        `gorm:"index" json:"assignee_id"`
	Assignee       *User        `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	EstimatedHours float64      `gorm:"default:0" json:"estimated_hours"`
	ActualHours    float64      `gorm:"default:0" json:"actual_hours"`
	CreatedBy      *uint        `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// IsAssignedTo reports whether userID is the task's assignee.
func (t *Task) IsAssignedTo(userID uint) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// IsOverdue reports whether the task is past due and not done at now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != TaskStatusDone
}
