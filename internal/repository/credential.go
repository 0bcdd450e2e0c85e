package repository

import (
	"context"
	"errors"
	"time"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// CredentialRepository persists the credential ledger. Rows are only ever inserted or
// flagged; nothing here deletes.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	FindByDigest(ctx context.Context, digest string) (*models.Credential, error)
	RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository returns a new CredentialRepository implementation.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if err := r.db.WithContext(ctx).Create(cred).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Credential already recorded")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *credentialRepository) FindByDigest(ctx context.Context, digest string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("token_digest = ?", digest).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.AppError{Code: models.CodeNotFound, Message: "Credential not found"}
		}
		return nil, models.NewInternalError(err)
	}
	return &cred, nil
}

// RevokeAllForUser flags every live credential of userID in a single statement.
func (r *credentialRepository) RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("user_id = ? AND revoked = ? AND expired = ?", userID, false, false).
		Updates(map[string]interface{}{
			"revoked":    true,
			"revoked_at": at,
		})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

// ExpireStale sets expired=true on rows whose embedded expiry has passed.
func (r *credentialRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("expired = ? AND expires_at <= ?", false, now).
		Update("expired", true)
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}
