package service

import (
	"context"
	"time"

	"atrium/internal/models"
)

type credentialRepoStub struct {
	createFn           func(context.Context, *models.Credential) error
	findByDigestFn     func(context.Context, string) (*models.Credential, error)
	revokeAllForUserFn func(context.Context, uint, time.Time) (int64, error)
	expireStaleFn      func(context.Context, time.Time) (int64, error)
}

func (s *credentialRepoStub) Create(ctx context.Context, cred *models.Credential) error {
	return s.createFn(ctx, cred)
}
func (s *credentialRepoStub) FindByDigest(ctx context.Context, digest string) (*models.Credential, error) {
	return s.findByDigestFn(ctx, digest)
}
func (s *credentialRepoStub) RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error) {
	return s.revokeAllForUserFn(ctx, userID, at)
}
func (s *credentialRepoStub) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return s.expireStaleFn(ctx, now)
}

type publisherStub struct {
	published []*models.AccessRequest
	err       error
}

func (p *publisherStub) PublishDecision(_ context.Context, req *models.AccessRequest) error {
	p.published = append(p.published, req)
	return p.err
}
