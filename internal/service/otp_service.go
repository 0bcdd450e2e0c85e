package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"atrium/internal/clock"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/otp"
	"atrium/internal/sms"
	"atrium/internal/validation"

	"github.com/google/uuid"
)

const (
	minCode = 100000
	maxCode = 999999
)

// OTPConfig configures passcode lifetime and the wrong-attempt budget.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// OTPService issues and verifies phone passcodes.
type OTPService struct {
	store  otp.Store
	sender sms.Sender
	hasher *otp.Hasher
	clock  clock.Clock
	random clock.RandomSource
	cfg    OTPConfig
}

// NewOTPService returns a new OTPService.
func NewOTPService(store otp.Store, sender sms.Sender, hasher *otp.Hasher, clk clock.Clock, random clock.RandomSource, cfg OTPConfig) *OTPService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &OTPService{
		store:  store,
		sender: sender,
		hasher: hasher,
		clock:  clk,
		random: random,
		cfg:    cfg,
	}
}

// Issue generates a fresh code for phone, replaces any outstanding one and sends it.
// When delivery fails the code stays stored and a DELIVERY_ERROR is returned.
func (s *OTPService) Issue(ctx context.Context, phone string) (*otp.Challenge, error) {
	return s.issue(ctx, phone, "issue")
}

// Resend is Issue for retry flows: a new code always overwrites the previous one.
func (s *OTPService) Resend(ctx context.Context, phone string) (*otp.Challenge, error) {
	return s.issue(ctx, phone, "resend")
}

func (s *OTPService) issue(ctx context.Context, raw, op string) (*otp.Challenge, error) {
	phone, err := validation.NormalizePhone(raw)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	ctx, span := observability.StartSpan(ctx, "OTPService", op)
	defer span.End()

	n, err := s.random.Between(minCode, maxCode)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("generate code: %w", err))
	}
	code := fmt.Sprintf("%06d", n)

	now := s.clock.Now()
	ch := &otp.Challenge{
		ID:        uuid.NewString(),
		Phone:     phone,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	entry := otp.Entry{
		ChallengeID: ch.ID,
		Digest:      s.hasher.Digest(phone, code),
		IssuedAt:    ch.IssuedAt,
		ExpiresAt:   ch.ExpiresAt,
	}
	if err := s.store.Put(ctx, phone, entry); err != nil {
		span.RecordError(err)
		return nil, models.NewInternalError(fmt.Errorf("store challenge: %w", err))
	}

	msg := fmt.Sprintf("Your Atrium verification code is %s. It expires in %d minutes.", code, int(s.cfg.TTL.Minutes()))
	if _, err := s.sender.Send(ctx, phone, msg); err != nil {
		span.RecordError(err)
		observability.OTPEvents.WithLabelValues("delivery_failed").Inc()
		middleware.Logger.WarnContext(ctx, "otp delivery failed",
			slog.String("op", op),
			slog.String("phone", validation.MaskPhone(phone)),
			slog.String("challenge_id", ch.ID))
		return nil, models.NewDeliveryError(err)
	}

	observability.OTPEvents.WithLabelValues("issued").Inc()
	middleware.Logger.InfoContext(ctx, "otp issued",
		slog.String("op", op),
		slog.String("phone", validation.MaskPhone(phone)),
		slog.String("challenge_id", ch.ID))
	return ch, nil
}

// Verify reports whether code matches the outstanding, unexpired challenge for phone.
// A match consumes the challenge. The wrong attempt that exhausts the budget burns the
// challenge and returns TOO_MANY_ATTEMPTS.
func (s *OTPService) Verify(ctx context.Context, raw, code string) (bool, error) {
	phone, err := validation.NormalizePhone(raw)
	if err != nil {
		return false, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateOTP(code); err != nil {
		return false, models.NewValidationError(err.Error())
	}

	ctx, span := observability.StartSpan(ctx, "OTPService", "Verify")
	defer span.End()

	res, err := s.store.Check(ctx, phone, s.hasher.Digest(phone, code), s.clock.Now(), s.cfg.MaxAttempts)
	if err != nil {
		span.RecordError(err)
		return false, models.NewInternalError(fmt.Errorf("check challenge: %w", err))
	}

	observability.OTPEvents.WithLabelValues(res.String()).Inc()
	logAttrs := []any{slog.String("phone", validation.MaskPhone(phone)), slog.String("result", res.String())}

	switch res {
	case otp.ResultMatch:
		middleware.Logger.InfoContext(ctx, "otp verified", logAttrs...)
		return true, nil
	case otp.ResultLocked:
		middleware.Logger.WarnContext(ctx, "otp challenge locked", logAttrs...)
		return false, models.NewTooManyAttemptsError("Too many incorrect codes; request a new one")
	default:
		middleware.Logger.InfoContext(ctx, "otp rejected", logAttrs...)
		return false, nil
	}
}
