// Package middleware provides the authentication gate, capability guards and request
// plumbing shared by every route.
package middleware

import (
	"context"
	"log/slog"
	"strings"

	"atrium/internal/models"
	"atrium/internal/observability"

	"github.com/gofiber/fiber/v2"
)

const (
	// PrincipalKey is the fiber local holding the admitted *models.Principal.
	PrincipalKey = "principal"
	// UserIDLocal mirrors the principal's user id for rate limiting and tracing.
	UserIDLocal = "userID"

	bearerScheme = "Bearer"
)

// TokenValidator decides whether a bearer value identifies a caller.
type TokenValidator interface {
	Validate(ctx context.Context, value string) (*models.Principal, error)
}

// Authenticate is the permissive gate: it never rejects a request. A missing, malformed,
// invalid, revoked or expired token leaves the request anonymous; a valid one binds the
// principal to the request exactly once. Routes opt into enforcement with RequireAuth
// and RequireRole.
func Authenticate(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFrom(c); ok {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			observability.AuthGateOutcomes.WithLabelValues("anonymous").Inc()
			return c.Next()
		}

		value, ok := bearerValue(header)
		if !ok {
			observability.AuthGateOutcomes.WithLabelValues("malformed").Inc()
			Logger.DebugContext(c.UserContext(), "malformed authorization header")
			return c.Next()
		}

		principal, err := v.Validate(c.UserContext(), value)
		if err != nil || principal == nil {
			observability.AuthGateOutcomes.WithLabelValues("rejected").Inc()
			if err != nil {
				Logger.InfoContext(c.UserContext(), "bearer token rejected", slog.String("reason", err.Error()))
			}
			return c.Next()
		}

		c.Locals(PrincipalKey, principal)
		c.Locals(UserIDLocal, principal.UserID)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, principal.UserID))
		observability.AuthGateOutcomes.WithLabelValues("admitted").Inc()
		return c.Next()
	}
}

// bearerValue strips the scheme from an Authorization header value.
func bearerValue(header string) (string, bool) {
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " \t") {
		return "", false
	}
	return value, true
}

// PrincipalFrom returns the principal bound by Authenticate, if any.
func PrincipalFrom(c *fiber.Ctx) (*models.Principal, bool) {
	p, ok := c.Locals(PrincipalKey).(*models.Principal)
	return p, ok && p != nil
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFrom(c); !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		return c.Next()
	}
}

// RequireRole rejects anonymous requests with 401 and callers lacking every listed
// role with 403.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		if !p.HasRole(roles...) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Insufficient role for this operation"))
		}
		return c.Next()
	}
}
