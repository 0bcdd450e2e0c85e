package server

import (
	"log/slog"
	"time"

	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/otp"
	"atrium/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	otpPhoneLimit  = 5
	otpPhoneWindow = 15 * time.Minute
)

type otpRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

// RequestOTP handles POST /api/auth/otp
// @Summary Request a sign-in code
// @Description Sends a one-time code to the phone and replaces any outstanding one
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phone=string} true "Phone in E.164 form"
// @Success 202 {object} otp.Challenge
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /auth/otp [post]
func (s *Server) RequestOTP(c *fiber.Ctx) error {
	return s.issueOTP(c, false)
}

// ResendOTP handles POST /api/auth/otp/resend
func (s *Server) ResendOTP(c *fiber.Ctx) error {
	return s.issueOTP(c, true)
}

func (s *Server) issueOTP(c *fiber.Ctx, resend bool) error {
	var req otpRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	phone, err := validation.NormalizePhone(req.Phone)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
	}
	if !s.allowPhone(c, phone) {
		return models.RespondWithError(c, fiber.StatusTooManyRequests,
			models.NewTooManyAttemptsError("Too many codes requested for this phone; try again later"))
	}

	var ch *otp.Challenge
	if resend {
		ch, err = s.otpService.Resend(c.UserContext(), phone)
	} else {
		ch, err = s.otpService.Issue(c.UserContext(), phone)
	}
	if err != nil {
		return models.Respond(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ch)
}

// allowPhone applies the per-phone issuance limit. A limiter failure lets the
// request through.
func (s *Server) allowPhone(c *fiber.Ctx, phone string) bool {
	allowed, err := middleware.CheckRateLimit(c.UserContext(), s.redis, "otp_phone", phone, otpPhoneLimit, otpPhoneWindow)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "otp phone limiter unavailable",
			slog.String("phone", validation.MaskPhone(phone)),
			slog.String("error", err.Error()))
		return true
	}
	return allowed
}

// VerifyOTP handles POST /api/auth/otp/verify
// @Summary Sign in with a one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phone=string,otp=string} true "Phone and code"
// @Success 200 {object} service.SignInResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse "wrong, expired or already used code"
// @Failure 404 {object} models.ErrorResponse "no account for this phone"
// @Failure 429 {object} models.ErrorResponse "attempt budget exhausted"
// @Router /auth/otp/verify [post]
func (s *Server) VerifyOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.authService.SignInWithOTP(c.UserContext(), req.Phone, req.OTP)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(result)
}

// Logout handles POST /api/auth/logout. Every credential of the caller is revoked
// before the response is written.
func (s *Server) Logout(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	if err := s.authService.Logout(c.UserContext(), p.UserID); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return nil
	}
	user, err := s.authService.Me(c.UserContext(), p)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"user":       user,
		"role":       p.Role,
		"expires_at": p.ExpiresAt,
	})
}
