// Command seed fills the database with demo author registration requests.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"soundcheck/internal/bootstrap"
	"soundcheck/internal/config"
	"soundcheck/internal/middleware"
	"soundcheck/internal/notifications"
	"soundcheck/internal/repository"
	"soundcheck/internal/seed"
	"soundcheck/internal/service"
)

func main() {
	preset := flag.String("preset", "demo", "Built-in preset name or path to a YAML preset")
	random := flag.Int("random", -1, "Override the number of generated requests")
	fakerSeed := flag.Int64("seed", time.Now().UnixNano(), "Seed for generated data")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	p, err := seed.LoadPreset(*preset)
	if err != nil {
		log.Fatalf("Failed to load preset: %v", err)
	}
	if *random >= 0 {
		p.Random = *random
	}

	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close(context.Background())

	users := repository.NewUserRepository(rt.DB)
	authors := repository.NewAuthorRepository(rt.DB)
	registrations := service.NewRegistrationService(
		rt.DB,
		repository.NewRegistrationRequestRepository(rt.DB),
		users,
		authors,
		// Seeded applicants never get real mail.
		notifications.NewLogMailer(middleware.Logger),
		notifications.NewAdminPublisher(notifications.NewNotifier(nil), nil),
		service.RegistrationConfig{BaseURL: cfg.BaseURL},
	)

	res, err := seed.NewSeeder(registrations, *fakerSeed).Apply(context.Background(), p)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d pending, %d approved, %d rejected (%d skipped)",
		res.Pending, res.Approved, res.Rejected, res.Skipped)
}
