package server

import (
	"strings"

	"atrium/internal/models"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateAccessRequest handles POST /api/projects/:projectId/access-requests
// @Summary Ask to join a project
// @Tags access-requests
// @Accept json
// @Produce json
// @Param projectId path int true "Project ID"
// @Param request body object{pm_name=string,description=string} true "Reviewer and reason"
// @Success 201 {object} models.AccessRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /projects/{projectId}/access-requests [post]
func (s *Server) CreateAccessRequest(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	projectID, err := parseID(c, "projectId")
	if err != nil {
		return nil
	}

	var body struct {
		PMName      string `json:"pm_name"`
		Description string `json:"description"`
	}
	if err := parseBody(c, &body); err != nil {
		return nil
	}

	req, err := s.requestService.Create(c.UserContext(), service.CreateAccessRequestInput{
		RequesterID: p.UserID,
		ProjectID:   projectID,
		PMName:      body.PMName,
		Description: body.Description,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetMyAccessRequests handles GET /api/access-requests/mine
func (s *Server) GetMyAccessRequests(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	reqs, err := s.requestService.ListMine(c.UserContext(), p.UserID)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(reqs)
}

// WithdrawAccessRequest handles DELETE /api/access-requests/:id
func (s *Server) WithdrawAccessRequest(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requestService.Withdraw(c.UserContext(), id, p.UserID); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPendingAccessRequests handles GET /api/access-requests/pending
// @Summary List undecided requests, oldest first
// @Tags access-requests
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.PendingPage
// @Router /access-requests/pending [get]
func (s *Server) GetPendingAccessRequests(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)
	result, err := s.requestService.ListPending(c.UserContext(), service.Page{
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(result)
}

// GetUnreadAccessRequests handles GET /api/access-requests/unread. The reviewer is
// the caller; an admin may name another reviewer with ?pm_name.
func (s *Server) GetUnreadAccessRequests(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}

	pmName := strings.TrimSpace(c.Query("pm_name"))
	if pmName == "" || !p.HasRole(models.RoleAdmin) {
		user, err := s.authService.Me(c.UserContext(), p)
		if err != nil {
			return models.Respond(c, err)
		}
		pmName = user.Name
	}

	reqs, err := s.requestService.ListUnreadForReviewer(c.UserContext(), pmName)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(reqs)
}

// DecideAccessRequest handles POST /api/access-requests/:id/decision
// @Summary Approve or deny a pending request
// @Tags access-requests
// @Accept json
// @Produce json
// @Param id path int true "Access request ID"
// @Param request body object{allowed=bool} true "Decision"
// @Success 200 {object} models.AccessRequest
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "already decided"
// @Router /access-requests/{id}/decision [post]
func (s *Server) DecideAccessRequest(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Allowed *bool `json:"allowed"`
	}
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	if body.Allowed == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("allowed is required"))
	}

	req, err := s.requestService.Decide(c.UserContext(), id, *body.Allowed, p)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(req)
}

// AcknowledgeAccessRequest handles POST /api/access-requests/:id/acknowledge
func (s *Server) AcknowledgeAccessRequest(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requestService.Acknowledge(c.UserContext(), id, p); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
