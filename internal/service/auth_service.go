package service

import (
	"context"
	"time"

	"atrium/internal/models"
	"atrium/internal/repository"
	"atrium/internal/validation"
)

// SignInResult is returned after a successful passcode sign-in.
type SignInResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AuthService ties passcode verification to identity lookup and credential minting.
type AuthService struct {
	otp    *OTPService
	ledger *CredentialLedger
	users  repository.UserRepository
}

// NewAuthService returns a new AuthService.
func NewAuthService(otpSvc *OTPService, ledger *CredentialLedger, users repository.UserRepository) *AuthService {
	return &AuthService{
		otp:    otpSvc,
		ledger: ledger,
		users:  users,
	}
}

// SignInWithOTP verifies code for phone and, when an identity is registered for the
// phone, mints a bearer token for it. Wrong, expired or already used codes yield
// UNAUTHORIZED; an unknown phone yields NOT_FOUND.
func (s *AuthService) SignInWithOTP(ctx context.Context, rawPhone, code string) (*SignInResult, error) {
	ok, err := s.otp.Verify(ctx, rawPhone, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("incorrect")
	}

	phone, _ := validation.NormalizePhone(rawPhone)
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &models.AppError{Code: models.CodeNotFound, Message: "No account is registered for this phone"}
	}

	token, exp, err := s.ledger.Mint(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Token: token, ExpiresAt: exp, User: user}, nil
}

// Logout revokes every credential of userID before returning.
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	_, err := s.ledger.RevokeAll(ctx, userID)
	return err
}

// Me returns the user record behind principal.
func (s *AuthService) Me(ctx context.Context, principal *models.Principal) (*models.User, error) {
	if principal == nil {
		return nil, models.NewUnauthorizedError("authentication required")
	}
	return s.users.GetByID(ctx, principal.UserID)
}
