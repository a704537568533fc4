package models

import (
	"time"
)

// Project groups tasks and the users allowed to work on them
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Archived    bool      `gorm:"default:false;index" json:"archived"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Members []User `gorm:"many2many:project_members;joinForeignKey:ProjectID;joinReferences:UserID" json:"members,omitempty"`
	Tasks   []Task `gorm:"foreignKey:ProjectID" json:"tasks,omitempty"`
}

func (Project) TableName() string { return "projects" }

// MemberIDs returns the ids of the loaded members.
func (p *Project) MemberIDs() []uint {
	ids := make([]uint, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
