package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewValidationError("bad"), fiber.StatusBadRequest},
		{NewNotFoundError("User", 1), fiber.StatusNotFound},
		{NewConflictError("dup"), fiber.StatusConflict},
		{NewUnauthorizedError("no"), fiber.StatusUnauthorized},
		{NewForbiddenError("no"), fiber.StatusForbidden},
		{NewDeliveryError(errors.New("gateway down")), fiber.StatusBadGateway},
		{NewTooManyAttemptsError("slow down"), fiber.StatusTooManyRequests},
		{NewSigningError(errors.New("no key")), fiber.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewConflictError("dup")), fiber.StatusConflict},
		{errors.New("plain"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("decide: %w", NewConflictError("already decided"))
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(nil, CodeConflict))
}

func TestRespondWithErrorHidesProviderDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/delivery", func(c *fiber.Ctx) error {
		return Respond(c, NewDeliveryError(errors.New("provider said: account 123 suspended")))
	})
	app.Get("/validation", func(c *fiber.Ctx) error {
		return Respond(c, &AppError{Code: CodeValidation, Message: "bad phone", Err: errors.New("missing +")})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/delivery", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.NotContains(t, string(body), "suspended")

	resp, err = app.Test(httptest.NewRequest("GET", "/validation", nil))
	require.NoError(t, err)
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_ = resp.Body.Close()
	assert.Equal(t, CodeValidation, out.Code)
	assert.Equal(t, "missing +", out.Details)
}

func TestAccessRequestDerivedFlags(t *testing.T) {
	r := AccessRequest{Decision: DecisionPending}
	assert.False(t, r.Updated())
	assert.False(t, r.Allowed())

	r.Decision = DecisionFor(true)
	assert.True(t, r.Updated())
	assert.True(t, r.Allowed())

	r.Decision = DecisionFor(false)
	assert.True(t, r.Updated())
	assert.False(t, r.Allowed())
}
