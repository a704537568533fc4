package models

import "time"

// TimeLog is an append-only record of hours spent on a task.
type TimeLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      uint      `gorm:"index;not null" json:"task_id"`
	UserID      *uint     `gorm:"index" json:"user_id"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Hours       float64   `gorm:"not null" json:"hours"`
	LogDate     time.Time `gorm:"index" json:"log_date"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TimeLog) TableName() string { return "time_logs" }
