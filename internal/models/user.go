// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the flat role enumeration carried in bearer tokens.
type Role string

const (
	// RoleMember is the default role for project participants.
	RoleMember Role = "member"
	// RoleProjectManager may review access requests.
	RoleProjectManager Role = "project_manager"
	// RoleAdmin may review any access request.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleProjectManager, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record resolved by phone or email during sign-in.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:120;not null;uniqueIndex" json:"name"`
	Email     string         `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone     string         `gorm:"size:20;uniqueIndex" json:"phone"`
	Role      Role           `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
