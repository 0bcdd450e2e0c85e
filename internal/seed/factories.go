// Package seed provides helpers to create demo data for the application database.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"time"

	"atrium/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db      *gorm.DB
	faker   *gofakeit.Faker
	counter int
}

// NewFactory creates a new Factory bound to db. A zero seed draws a random one.
func NewFactory(db *gorm.DB, seed int64) *Factory {
	return &Factory{db: db, faker: gofakeit.New(seed)}
}

// CreateUser persists a fake user. Names, emails and phones are unique per factory.
func (f *Factory) CreateUser(role models.Role, overrides ...func(*models.User)) (*models.User, error) {
	f.counter++
	first, last := f.faker.FirstName(), f.faker.LastName()
	user := &models.User{
		Name:  fmt.Sprintf("%s %s %d", first, last, f.counter),
		Email: fmt.Sprintf("%s.%s.%d@%s", first, last, f.counter, f.faker.DomainName()),
		Phone: fmt.Sprintf("+1555%07d", f.counter),
		Role:  role,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAccessRequest persists a pending request from requester to reviewer.
func (f *Factory) CreateAccessRequest(requester, reviewer *models.User, projectID uint, overrides ...func(*models.AccessRequest)) (*models.AccessRequest, error) {
	req := &models.AccessRequest{
		RequesterID: requester.ID,
		ProjectID:   projectID,
		PMName:      reviewer.Name,
		Description: f.faker.Sentence(12),
		Decision:    models.DecisionPending,
	}
	for _, override := range overrides {
		override(req)
	}

	if err := f.db.Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// Decided marks a request as decided by reviewer at a recent random time.
func (f *Factory) Decided(reviewer *models.User, allowed, acknowledged bool) func(*models.AccessRequest) {
	return func(req *models.AccessRequest) {
		at := time.Now().Add(-time.Duration(f.faker.Number(1, 72)) * time.Hour)
		id := reviewer.ID
		req.Decision = models.DecisionFor(allowed)
		req.DecidedAt = &at
		req.DecidedByUserID = &id
		req.PMNotified = acknowledged
	}
}
