package models

import "time"

// CredentialType distinguishes kinds of issued credentials.
type CredentialType string

// CredentialTypeBearer is the only credential kind issued today.
const CredentialTypeBearer CredentialType = "bearer"

// Credential is the ledger row for an issued bearer token. Rows are never deleted; a
// credential is usable only while both Revoked and Expired are false.
type Credential struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TokenDigest string         `gorm:"size:64;not null;uniqueIndex" json:"-"`
	TokenID     string         `gorm:"size:64;not null;uniqueIndex" json:"token_id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Type        CredentialType `gorm:"type:varchar(20);not null;default:'bearer'" json:"type"`
	Revoked     bool           `gorm:"not null;default:false;index" json:"revoked"`
	Expired     bool           `gorm:"not null;default:false;index" json:"expired"`
	ExpiresAt   time.Time      `gorm:"not null;index" json:"expires_at"`
	RevokedAt   *time.Time     `json:"revoked_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Credential) TableName() string {
	return "credentials"
}

// Usable reports whether neither ledger flag invalidates the credential.
func (c *Credential) Usable() bool {
	return !c.Revoked && !c.Expired
}
