package repository

import (
	"context"
	"errors"
	"time"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// AccessRequestRepository persists project access requests. Every state change is a
// single conditional UPDATE so concurrent callers cannot both win.
type AccessRequestRepository interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	GetByID(ctx context.Context, id uint) (*models.AccessRequest, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.AccessRequest, error)
	CountPending(ctx context.Context) (int64, error)
	ListUnreadForReviewer(ctx context.Context, pmName string) ([]models.AccessRequest, error)
	ListByRequester(ctx context.Context, requesterID uint) ([]models.AccessRequest, error)
	Decide(ctx context.Context, id uint, decision models.Decision, reviewerID uint, at time.Time) error
	Acknowledge(ctx context.Context, id uint) error
	Withdraw(ctx context.Context, id, requesterID uint) error
}

type accessRequestRepository struct {
	db *gorm.DB
}

// NewAccessRequestRepository returns a new AccessRequestRepository implementation.
func NewAccessRequestRepository(db *gorm.DB) AccessRequestRepository {
	return &accessRequestRepository{db: db}
}

// Create inserts a pending request. At most one pending request may exist per
// (requester, project); the partial unique index backs the in-transaction check.
func (r *accessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	req.Decision = models.DecisionPending
	req.PMNotified = false
	req.DecidedAt = nil
	req.DecidedByUserID = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.AccessRequest{}).
			Where("requester_id = ? AND project_id = ? AND decision = ?", req.RequesterID, req.ProjectID, models.DecisionPending).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return models.NewConflictError("An open access request already exists for this project")
		}
		return tx.Create(req).Error
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		if isUniqueConstraintError(err) {
			return models.NewConflictError("An open access request already exists for this project")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *accessRequestRepository) GetByID(ctx context.Context, id uint) (*models.AccessRequest, error) {
	var req models.AccessRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("AccessRequest", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *accessRequestRepository) ListPending(ctx context.Context, limit, offset int) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("decision = ?", models.DecisionPending).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("decision = ?", models.DecisionPending).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *accessRequestRepository) ListUnreadForReviewer(ctx context.Context, pmName string) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("pm_name = ? AND decision <> ? AND pm_notified = ?", pmName, models.DecisionPending, false).
		Order("id ASC").
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *accessRequestRepository) ListByRequester(ctx context.Context, requesterID uint) ([]models.AccessRequest, error) {
	var reqs []models.AccessRequest
	if err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("id DESC").
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

// Decide finalizes a pending request. The decision, the cleared notification flag and
// the audit columns are written in one statement guarded by decision = pending.
func (r *accessRequestRepository) Decide(ctx context.Context, id uint, decision models.Decision, reviewerID uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("id = ? AND decision = ?", id, models.DecisionPending).
		Updates(map[string]interface{}{
			"decision":           decision,
			"pm_notified":        false,
			"decided_by_user_id": reviewerID,
			"decided_at":         at,
		})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return models.NewConflictError("Access request has already been decided")
}

// Acknowledge marks a decided request as seen by its reviewer. Repeating it is a no-op.
func (r *accessRequestRepository) Acknowledge(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("id = ? AND decision <> ? AND pm_notified = ?", id, models.DecisionPending, false).
		Update("pm_notified", true)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	req, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !req.Updated() {
		return models.NewConflictError("Access request has not been decided yet")
	}
	return nil
}

// Withdraw soft-deletes a pending request on behalf of its requester.
func (r *accessRequestRepository) Withdraw(ctx context.Context, id, requesterID uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND requester_id = ? AND decision = ?", id, requesterID, models.DecisionPending).
		Delete(&models.AccessRequest{})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	req, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.RequesterID != requesterID {
		return models.NewForbiddenError("Only the requester may withdraw this request")
	}
	return models.NewConflictError("Access request has already been decided")
}
