package models

import (
	"time"

	"gorm.io/datatypes"
)

// HistoryAction names the kind of state transition an audit row records.
type HistoryAction string

const (
	ActionCreated        HistoryAction = "created"
	ActionUpdated        HistoryAction = "updated"
	ActionStatusChanged  HistoryAction = "status_changed"
	ActionAssigned       HistoryAction = "assigned"
	ActionMembersAdded   HistoryAction = "members_added"
	ActionMembersRemoved HistoryAction = "members_removed"
	ActionArchiveToggled HistoryAction = "archive_toggled"
	ActionTaskCreated    HistoryAction = "task_created"
	ActionTaskDeleted    HistoryAction = "task_deleted"
)

// ProjectHistory is an append-only audit row owned by a project
type ProjectHistory struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ProjectID   uint              `gorm:"index;not null" json:"project_id"`
	UserID      *uint             `gorm:"index" json:"user_id"`
	User        *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action      HistoryAction     `gorm:"size:50;index;not null" json:"action"`
	FieldName   *string           `gorm:"size:100" json:"field_name"`
	OldValue    *string           `gorm:"type:text" json:"old_value"`
	NewValue    *string           `gorm:"type:text" json:"new_value"`
	Changes     datatypes.JSONMap `json:"changes,omitempty"`
	Description string            `gorm:"type:text" json:"description"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

func (ProjectHistory) TableName() string { return "project_histories" }

// TaskHistory is an append-only audit row owned by a task
type TaskHistory struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	TaskID      uint              `gorm:"index;not null" json:"task_id"`
	UserID      *uint             `gorm:"index" json:"user_id"`
	User        *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action      HistoryAction     `gorm:"size:50;index;not null" json:"action"`
	FieldName   *string           `gorm:"size:100" json:"field_name"`
	OldValue    *string           `gorm:"type:text" json:"old_value"`
	NewValue    *string           `gorm:"type:text" json:"new_value"`
	Changes     datatypes.JSONMap `json:"changes,omitempty"`
	Description string            `gorm:"type:text" json:"description"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

func (TaskHistory) TableName() string { return "task_histories" }
