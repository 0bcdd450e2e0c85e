package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Decision is the review state of an access request.
type Decision string

const (
	// DecisionPending indicates the request is awaiting review.
	DecisionPending Decision = "pending"
	// DecisionApproved indicates the reviewer admitted the requester.
	DecisionApproved Decision = "approved"
	// DecisionDenied indicates the reviewer refused the requester.
	DecisionDenied Decision = "denied"
)

// DecisionFor converts a reviewer verdict into a Decision.
func DecisionFor(allowed bool) Decision {
	if allowed {
		return DecisionApproved
	}
	return DecisionDenied
}

// MaxDescriptionLength bounds the free-text description of a request.
const MaxDescriptionLength = 1000

// AccessRequest is a user's request to join a project. Decisions are final and each
// decision leaves exactly one unread notification (PMNotified=false) for the reviewer.
type AccessRequest struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RequesterID     uint           `gorm:"not null;index;uniqueIndex:idx_access_requests_open,where:decision = 'pending' AND deleted_at IS NULL" json:"requester_id"`
	ProjectID       uint           `gorm:"not null;index;uniqueIndex:idx_access_requests_open,where:decision = 'pending' AND deleted_at IS NULL" json:"project_id"`
	PMName          string         `gorm:"size:120;not null;index" json:"pm_name"`
	Description     string         `gorm:"type:text" json:"description"`
	Decision        Decision       `gorm:"type:varchar(20);not null;default:'pending';index" json:"decision"`
	PMNotified      bool           `gorm:"not null;default:false" json:"pm_notified"`
	DecidedByUserID *uint          `json:"decided_by_user_id,omitempty"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM.
func (AccessRequest) TableName() string {
	return "access_requests"
}

// Allowed reports whether the request was approved.
func (r *AccessRequest) Allowed() bool {
	return r.Decision == DecisionApproved
}

// Updated reports whether a reviewer has decided the request.
func (r *AccessRequest) Updated() bool {
	return r.Decision != DecisionPending
}

// MarshalJSON adds the derived allowed and updated flags to the stored columns.
func (r AccessRequest) MarshalJSON() ([]byte, error) {
	type row AccessRequest
	return json.Marshal(struct {
		row
		Allowed bool `json:"allowed"`
		Updated bool `json:"updated"`
	}{
		row:     row(r),
		Allowed: r.Allowed(),
		Updated: r.Updated(),
	})
}
