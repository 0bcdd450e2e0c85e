package service

import (
	"context"
	"testing"

	"atrium/internal/models"
	"atrium/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInWithOTPScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, 42, "ada", "+15550001234", models.RoleMember)

	_, err := f.otp.Issue(ctx, "+15550001234")
	require.NoError(t, err)
	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	code := testutil.CodeFrom(t, msgs[0])
	assert.Len(t, code, 6)

	res, err := f.auth.SignInWithOTP(ctx, "+15550001234", code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.EqualValues(t, 42, res.User.ID)
	assert.True(t, f.ledger.IsValid(ctx, res.Token))

	_, err = f.auth.SignInWithOTP(ctx, "+15550001234", code)
	assert.True(t, models.HasCode(err, models.CodeUnauthorized), "got %v", err)
}

func TestSignInWithOTPUnknownPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.otp.Issue(ctx, "+15550009999")
	require.NoError(t, err)
	code := testutil.CodeFrom(t, f.sender.Messages()[0])

	_, err = f.auth.SignInWithOTP(ctx, "+15550009999", code)
	assert.True(t, models.HasCode(err, models.CodeNotFound), "got %v", err)
}

func TestLogoutRevokesBeforeReturning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, 42, "ada", "+15550001234", models.RoleMember)

	token, _, err := f.ledger.Mint(ctx, 42)
	require.NoError(t, err)
	p, err := f.ledger.Validate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, p.UserID))
	assert.False(t, f.ledger.IsValid(ctx, token))

	me, err := f.auth.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "ada", me.Name)

	_, err = f.auth.Me(ctx, nil)
	assert.True(t, models.HasCode(err, models.CodeUnauthorized))
}
