package service

import (
	"context"
	"testing"
	"time"

	"atrium/internal/clock"
	"atrium/internal/models"
	"atrium/internal/otp"
	"atrium/internal/repository"
	"atrium/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key-that-is-long-enough-123"

var testEpoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	clock   *clock.Fixed
	sender  *testutil.SenderStub
	users   repository.UserRepository
	creds   repository.CredentialRepository
	ledger  *CredentialLedger
	otp     *OTPService
	auth    *AuthService
	hasher  *otp.Hasher
	store   *otp.MemoryStore
	reqRepo repository.AccessRequestRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := &fixture{
		db:      db,
		clock:   clock.NewFixed(testEpoch),
		sender:  &testutil.SenderStub{},
		users:   repository.NewUserRepository(db),
		creds:   repository.NewCredentialRepository(db),
		store:   otp.NewMemoryStore(),
		reqRepo: repository.NewAccessRequestRepository(db),
	}
	hasher, err := otp.NewHasher(testSecret)
	require.NoError(t, err)
	f.hasher = hasher
	f.ledger = NewCredentialLedger(f.creds, f.users, f.clock, LedgerConfig{
		Secret:   testSecret,
		Issuer:   "atrium-api",
		Audience: "atrium-client",
		TTL:      10 * time.Minute,
	})
	f.otp = NewOTPService(f.store, f.sender, hasher, f.clock, clock.CryptoRandom{}, OTPConfig{TTL: 5 * time.Minute, MaxAttempts: 5})
	f.auth = NewAuthService(f.otp, f.ledger, f.users)
	return f
}

func (f *fixture) createUser(t *testing.T, id uint, name, phone string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{ID: id, Name: name, Email: name + "@example.com", Phone: phone, Role: role}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}
