// Command seed populates the database with demo users and access requests.
package main

import (
	"flag"
	"log"

	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/seed"
)

func main() {
	numMembers := flag.Int("members", 20, "Number of members to create")
	numManagers := flag.Int("managers", 3, "Number of project managers to create")
	numRequests := flag.Int("requests", 30, "Number of access requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if config.IsProduction(cfg.Env) {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	res, err := seed.Seed(db, seed.Options{
		NumMembers:  *numMembers,
		NumManagers: *numManagers,
		NumRequests: *numRequests,
		ShouldClean: *shouldClean,
		Seed:        *seedValue,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Admin: %s, sign in with phone %s", res.Admin.Name, res.Admin.Phone)
	for _, pm := range res.Managers {
		log.Printf("Project manager: %s, phone %s", pm.Name, pm.Phone)
	}
}
