// Package service implements the authorization core on top of the repositories.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"atrium/internal/clock"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Claims is the bearer token payload: subject is the user's email.
type Claims struct {
	Role   models.Role `json:"role"`
	UserID uint        `json:"uid"`
	jwt.RegisteredClaims
}

// LedgerConfig configures token signing.
type LedgerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// CredentialLedger mints bearer tokens, records each one, and is the single place
// that decides whether a presented token is still good.
type CredentialLedger struct {
	creds repository.CredentialRepository
	users repository.UserRepository
	clock clock.Clock
	cfg   LedgerConfig
}

// NewCredentialLedger returns a new CredentialLedger.
func NewCredentialLedger(creds repository.CredentialRepository, users repository.UserRepository, clk clock.Clock, cfg LedgerConfig) *CredentialLedger {
	return &CredentialLedger{
		creds: creds,
		users: users,
		clock: clk,
		cfg:   cfg,
	}
}

// TokenDigest is the ledger key for a token value.
func TokenDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Mint signs a token for userID and records it. The token is returned only after its
// ledger row is committed.
func (l *CredentialLedger) Mint(ctx context.Context, userID uint) (string, time.Time, error) {
	ctx, span := observability.StartSpan(ctx, "CredentialLedger", "Mint", attribute.Int64("user.id", int64(userID)))
	value, exp, err := l.mint(ctx, userID)
	observability.EndSpan(span, err)
	return value, exp, err
}

func (l *CredentialLedger) mint(ctx context.Context, userID uint) (string, time.Time, error) {
	if l.cfg.Secret == "" {
		observability.CredentialEvents.WithLabelValues("sign_failed").Inc()
		return "", time.Time{}, models.NewSigningError(errors.New("signing key unavailable"))
	}

	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}

	now := l.clock.Now()
	exp := now.Add(l.cfg.TTL).Truncate(time.Second)
	jti := uuid.NewString()

	claims := Claims{
		Role:   user.Role,
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			Issuer:    l.cfg.Issuer,
			Audience:  jwt.ClaimStrings{l.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.cfg.Secret))
	if err != nil {
		observability.CredentialEvents.WithLabelValues("sign_failed").Inc()
		return "", time.Time{}, models.NewSigningError(err)
	}

	cred := &models.Credential{
		TokenDigest: TokenDigest(value),
		TokenID:     jti,
		UserID:      user.ID,
		Type:        models.CredentialTypeBearer,
		ExpiresAt:   exp,
	}
	if err := l.creds.Create(ctx, cred); err != nil {
		return "", time.Time{}, err
	}

	observability.CredentialEvents.WithLabelValues("minted").Inc()
	middleware.Logger.InfoContext(ctx, "credential minted",
		slog.Uint64("subject_id", uint64(user.ID)),
		slog.String("jti", jti),
		slog.Time("expires_at", exp))
	return value, exp, nil
}

// parse checks signature and embedded claims without touching the store.
func (l *CredentialLedger) parse(value string) (*Claims, error) {
	if l.cfg.Secret == "" {
		return nil, errors.New("signing key unavailable")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(l.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if l.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(l.cfg.Issuer))
	}
	if l.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(l.cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(l.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 || claims.ID == "" {
		return nil, errors.New("token is missing required claims")
	}
	return claims, nil
}

// Validate returns the principal for value when the signature verifies, the embedded
// expiry has not passed, and the ledger row exists, matches, and is neither revoked
// nor expired. Any failure is an UNAUTHORIZED error.
func (l *CredentialLedger) Validate(ctx context.Context, value string) (*models.Principal, error) {
	claims, err := l.parse(value)
	if err != nil {
		return nil, models.NewUnauthorizedError(fmt.Sprintf("invalid token: %v", err))
	}

	ctx, span := observability.StartSpan(ctx, "CredentialLedger", "Validate", attribute.String("jti", claims.ID))
	defer span.End()

	cred, err := l.creds.FindByDigest(ctx, TokenDigest(value))
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("token is not recorded")
		}
		span.RecordError(err)
		return nil, models.NewUnauthorizedError("ledger unavailable")
	}
	if cred.UserID != claims.UserID || cred.TokenID != claims.ID {
		return nil, models.NewUnauthorizedError("token does not match its ledger entry")
	}
	if !cred.Usable() {
		return nil, models.NewUnauthorizedError("token is no longer usable")
	}
	if !l.clock.Now().Before(cred.ExpiresAt) {
		return nil, models.NewUnauthorizedError("token has expired")
	}

	return &models.Principal{
		UserID:    claims.UserID,
		Email:     claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: cred.ExpiresAt,
	}, nil
}

// IsValid reports whether value is currently usable. It never returns an error.
func (l *CredentialLedger) IsValid(ctx context.Context, value string) bool {
	_, err := l.Validate(ctx, value)
	return err == nil
}

// RevokeAll revokes every live credential of userID. It is idempotent and returns once
// the revocation is committed.
func (l *CredentialLedger) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	ctx, span := observability.StartSpan(ctx, "CredentialLedger", "RevokeAll", attribute.Int64("user.id", int64(userID)))
	n, err := l.creds.RevokeAllForUser(ctx, userID, l.clock.Now())
	observability.EndSpan(span, err)
	if err != nil {
		return 0, err
	}

	observability.CredentialEvents.WithLabelValues("revoked").Add(float64(n))
	middleware.Logger.InfoContext(ctx, "credentials revoked",
		slog.Uint64("subject_id", uint64(userID)),
		slog.Int64("count", n))
	return n, nil
}

// ExpireStale flags ledger rows whose expiry has passed.
func (l *CredentialLedger) ExpireStale(ctx context.Context) (int64, error) {
	n, err := l.creds.ExpireStale(ctx, l.clock.Now())
	if err != nil {
		return 0, err
	}
	observability.CredentialEvents.WithLabelValues("expired").Add(float64(n))
	return n, nil
}

// RunSweeper calls ExpireStale every interval until ctx is cancelled.
func (l *CredentialLedger) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.ExpireStale(ctx)
			if err != nil {
				middleware.Logger.WarnContext(ctx, "credential sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				middleware.Logger.InfoContext(ctx, "credential sweep", slog.Int64("expired", n))
			}
		}
	}
}
