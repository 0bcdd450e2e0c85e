package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"atrium/internal/clock"
	"atrium/internal/config"
	"atrium/internal/models"
	"atrium/internal/otp"
	"atrium/internal/repository"
	"atrium/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key-that-is-long-enough-123"

// wrongCode can never be issued: issued codes are at least 100000.
const wrongCode = "000000"

type testEnv struct {
	srv    *Server
	app    *fiber.App
	db     *gorm.DB
	clock  *clock.Fixed
	sender *testutil.SenderStub
	users  repository.UserRepository
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "test",
		JWTSecret:               testSecret,
		JWTIssuer:               "atrium-api",
		JWTAudience:             "atrium-client",
		TokenTTL:                10 * time.Minute,
		CredentialSweepInterval: time.Minute,
		OTPTTL:                  5 * time.Minute,
		OTPMaxAttempts:          5,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db := testutil.NewTestDB(t)
	env := &testEnv{
		db:     db,
		clock:  clock.NewFixed(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
		sender: &testutil.SenderStub{},
		users:  repository.NewUserRepository(db),
	}

	srv, err := NewServerWithDeps(testConfig(), Deps{
		DB:       db,
		OTPStore: otp.NewMemoryStore(),
		Sender:   env.sender,
		Clock:    env.clock,
	})
	require.NoError(t, err)
	env.srv = srv
	env.app = srv.NewApp()
	return env
}

func (e *testEnv) createUser(t *testing.T, id uint, name, phone string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{ID: id, Name: name, Email: name + "@example.com", Phone: phone, Role: role}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) tokenFor(t *testing.T, userID uint) string {
	t.Helper()
	token, _, err := e.srv.Ledger().Mint(context.Background(), userID)
	require.NoError(t, err)
	return token
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}
