package seed

import (
	"context"
	"fmt"
	"log"

	"atrium/internal/cache"
	"atrium/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumMembers  int
	NumManagers int
	NumRequests int
	ShouldClean bool
	Seed        int64
}

// Result summarizes what Seed created.
type Result struct {
	Admin    *models.User
	Managers []*models.User
	Members  []*models.User
	Requests []*models.AccessRequest
}

// Seed populates the database with demo users and access requests. Roughly a third
// of the requests stay pending, the rest are decided and some of those acknowledged.
func Seed(db *gorm.DB, opts Options) (*Result, error) {
	if opts.NumManagers <= 0 {
		opts.NumManagers = 1
	}
	if opts.NumMembers <= 0 {
		opts.NumMembers = 1
	}

	log.Printf("seeding %d members, %d project managers and %d access requests", opts.NumMembers, opts.NumManagers, opts.NumRequests)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	f := NewFactory(db, opts.Seed)
	res := &Result{}

	admin, err := f.CreateUser(models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	res.Admin = admin

	for i := 0; i < opts.NumManagers; i++ {
		pm, err := f.CreateUser(models.RoleProjectManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create project manager: %w", err)
		}
		res.Managers = append(res.Managers, pm)
	}
	for i := 0; i < opts.NumMembers; i++ {
		m, err := f.CreateUser(models.RoleMember)
		if err != nil {
			return nil, fmt.Errorf("failed to create member: %w", err)
		}
		res.Members = append(res.Members, m)
	}

	// Each request targets its own project so no requester holds two open requests
	// for the same one.
	for i := 0; i < opts.NumRequests; i++ {
		requester := res.Members[i%len(res.Members)]
		reviewer := res.Managers[i%len(res.Managers)]

		var overrides []func(*models.AccessRequest)
		switch i % 3 {
		case 1:
			overrides = append(overrides, f.Decided(reviewer, true, false))
		case 2:
			overrides = append(overrides, f.Decided(reviewer, false, i%2 == 0))
		}

		req, err := f.CreateAccessRequest(requester, reviewer, uint(i+1), overrides...)
		if err != nil {
			return nil, fmt.Errorf("failed to create access request: %w", err)
		}
		res.Requests = append(res.Requests, req)
	}

	log.Printf("seeding complete: admin %s (%s)", admin.Name, admin.Phone)
	return res, nil
}

func clearData(db *gorm.DB) error {
	log.Println("clearing existing data")
	if err := evictCachedUsers(db); err != nil {
		return err
	}
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE credentials, access_requests, users RESTART IDENTITY CASCADE;`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.Credential{}, &models.AccessRequest{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// evictCachedUsers drops cached identities so a reseed cannot resolve deleted users.
func evictCachedUsers(db *gorm.DB) error {
	var users []models.User
	if err := db.Unscoped().Select("id", "phone").Find(&users).Error; err != nil {
		return err
	}
	ctx := context.Background()
	for _, u := range users {
		cache.Invalidate(ctx, cache.UserKey(u.ID))
		cache.Invalidate(ctx, cache.UserPhoneKey(u.Phone))
	}
	return nil
}
