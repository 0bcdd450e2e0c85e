package service

import (
	"context"
	"log/slog"
	"strings"

	"atrium/internal/clock"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"
	"atrium/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// DecisionPublisher announces decided requests. Delivery is best effort.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, req *models.AccessRequest) error
}

// CreateAccessRequestInput carries the fields a requester supplies.
type CreateAccessRequestInput struct {
	RequesterID uint
	ProjectID   uint
	PMName      string
	Description string
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

// PendingPage is one page of undecided requests in insertion order.
type PendingPage struct {
	Items  []models.AccessRequest `json:"items"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// AccessRequestService manages the lifecycle of project access requests.
type AccessRequestService struct {
	requests  repository.AccessRequestRepository
	users     repository.UserRepository
	publisher DecisionPublisher
	clock     clock.Clock
}

// NewAccessRequestService returns a new AccessRequestService. publisher may be nil.
func NewAccessRequestService(requests repository.AccessRequestRepository, users repository.UserRepository, publisher DecisionPublisher, clk clock.Clock) *AccessRequestService {
	return &AccessRequestService{
		requests:  requests,
		users:     users,
		publisher: publisher,
		clock:     clk,
	}
}

// Create opens a pending request. A second open request for the same requester and
// project is a CONFLICT.
func (s *AccessRequestService) Create(ctx context.Context, in CreateAccessRequestInput) (*models.AccessRequest, error) {
	in.PMName = strings.TrimSpace(in.PMName)
	if in.RequesterID == 0 || in.ProjectID == 0 {
		return nil, models.NewValidationError("requester and project are required")
	}
	if err := validation.ValidatePMName(in.PMName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDescription(in.Description); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	req := &models.AccessRequest{
		RequesterID: in.RequesterID,
		ProjectID:   in.ProjectID,
		PMName:      in.PMName,
		Description: in.Description,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if models.HasCode(err, models.CodeConflict) {
			observability.AccessRequestEvents.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	observability.AccessRequestEvents.WithLabelValues("created").Inc()
	middleware.Logger.InfoContext(ctx, "access request created",
		slog.Uint64("request_id", uint64(req.ID)),
		slog.Uint64("project_id", uint64(req.ProjectID)),
		slog.String("pm_name", req.PMName))
	return req, nil
}

// ListPending returns undecided requests in insertion order.
func (s *AccessRequestService) ListPending(ctx context.Context, page Page) (*PendingPage, error) {
	if page.Limit <= 0 {
		page.Limit = 20
	}
	if page.Limit > 100 {
		page.Limit = 100
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	items, err := s.requests.ListPending(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	total, err := s.requests.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &PendingPage{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// ListUnreadForReviewer returns decided requests pmName has not acknowledged.
func (s *AccessRequestService) ListUnreadForReviewer(ctx context.Context, pmName string) ([]models.AccessRequest, error) {
	pmName = strings.TrimSpace(pmName)
	if pmName == "" {
		return nil, models.NewValidationError("pm_name is required")
	}
	return s.requests.ListUnreadForReviewer(ctx, pmName)
}

// ListMine returns every request opened by requesterID, newest first.
func (s *AccessRequestService) ListMine(ctx context.Context, requesterID uint) ([]models.AccessRequest, error) {
	return s.requests.ListByRequester(ctx, requesterID)
}

// reviewerFor loads the caller's user record and checks they may act on req.
func (s *AccessRequestService) reviewerFor(ctx context.Context, req *models.AccessRequest, caller *models.Principal) (*models.User, error) {
	if caller == nil {
		return nil, models.NewUnauthorizedError("authentication required")
	}
	user, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if caller.HasRole(models.RoleAdmin) {
		return user, nil
	}
	if caller.HasRole(models.RoleProjectManager) && user.Name == req.PMName {
		return user, nil
	}
	return nil, models.NewForbiddenError("Only the assigned reviewer may act on this request")
}

// Decide records the reviewer's verdict. Decisions are final: deciding twice, or two
// concurrent decisions, leaves exactly one winner and the rest get CONFLICT.
func (s *AccessRequestService) Decide(ctx context.Context, id uint, allowed bool, caller *models.Principal) (*models.AccessRequest, error) {
	ctx, span := observability.StartSpan(ctx, "AccessRequestService", "Decide",
		attribute.Int64("access_request.id", int64(id)), attribute.Bool("allowed", allowed))
	defer span.End()

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.reviewerFor(ctx, req, caller); err != nil {
		return nil, err
	}

	decision := models.DecisionFor(allowed)
	if err := s.requests.Decide(ctx, id, decision, caller.UserID, s.clock.Now()); err != nil {
		if models.HasCode(err, models.CodeConflict) {
			observability.AccessRequestEvents.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	decided, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	observability.AccessRequestEvents.WithLabelValues(string(decision)).Inc()
	middleware.Logger.InfoContext(ctx, "access request decided",
		slog.Uint64("request_id", uint64(id)),
		slog.String("decision", string(decision)),
		slog.Uint64("reviewer_id", uint64(caller.UserID)))

	if s.publisher != nil {
		if err := s.publisher.PublishDecision(ctx, decided); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to publish decision",
				slog.Uint64("request_id", uint64(id)),
				slog.String("error", err.Error()))
		}
	}
	return decided, nil
}

// Acknowledge marks a decided request as seen by its reviewer. It is idempotent.
func (s *AccessRequestService) Acknowledge(ctx context.Context, id uint, caller *models.Principal) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.reviewerFor(ctx, req, caller); err != nil {
		return err
	}
	if err := s.requests.Acknowledge(ctx, id); err != nil {
		return err
	}
	observability.AccessRequestEvents.WithLabelValues("acknowledged").Inc()
	return nil
}

// Withdraw soft-deletes requesterID's own pending request.
func (s *AccessRequestService) Withdraw(ctx context.Context, id, requesterID uint) error {
	if err := s.requests.Withdraw(ctx, id, requesterID); err != nil {
		return err
	}
	observability.AccessRequestEvents.WithLabelValues("withdrawn").Inc()
	middleware.Logger.InfoContext(ctx, "access request withdrawn", slog.Uint64("request_id", uint64(id)))
	return nil
}
