package models

import (
	"time"
)

// Role is the closed set of system roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleDeveloper}

// ParseRole returns the role named by s, or false when s names none.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return Role(s), true
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string { return string(r) }

// User represents a system user
type User struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:255;not null" json:"name"`
	Email       string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password    string     `gorm:"size:255" json:"-"` // bcrypt hash
	Role        Role       `gorm:"size:20;index;not null;default:developer" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	CreatedByID *uint      `json:"created_by_id"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// UserMini is the embedded form of a user inside other payloads.
type UserMini struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u *User) Mini() *UserMini {
	if u == nil {
		return nil
	}
	return &UserMini{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
