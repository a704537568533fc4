package models

import (
	"time"

	"gorm.io/datatypes"
)

// OverdueReport is a daily snapshot of tasks past their due date
type OverdueReport struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReportDate time.Time `gorm:"uniqueIndex;not null" json:"report_date"`

	TotalProjects int `json:"total_projects"`
	TotalOverdue  int `json:"total_overdue"`
	// MaxLateDays counts business days, not calendar days.
	MaxLateDays int `json:"max_late_days"`

	// Projects maps project id to {title, overdue, max_late_days, task_ids}.
	Projects datatypes.JSONMap `json:"projects"`

	CreatedAt time.Time `json:"created_at"`
}

func (OverdueReport) TableName() string { return "overdue_reports" }
