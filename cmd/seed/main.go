package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/config"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	pg "github.com/storeseo/pointsledger/internal/infra/db/postgres"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	packageRepo := pg.NewPackageRepo(pool)

	// If packages already exist, do nothing
	pkgs, err := packageRepo.ListActive(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list packages: %v", err)
	}
	if len(pkgs) > 0 {
		fmt.Printf("%d packages already present. No changes.\n", len(pkgs))
		for _, p := range pkgs {
			fmt.Printf("  - %s (points=%d, price=%s %s, subscription=%v)\n",
				p.Name, p.Points, p.Price.StringFixed(2), p.Currency, p.Subscription)
		}
		return
	}

	// Seed a few sample packages for testing the checkout flow
	seed := []struct {
		ID     string
		Name   string
		Points int64
		Price  string
		Sub    bool
	}{
		{"starter", "Starter", 300, "4.99", false},
		{"pro", "Pro", 2000, "24.99", false},
		{"ultra", "Ultra", 8000, "79.99", false},
		{"monthly-pro", "Monthly Pro", 2000, "19.99", true},
	}

	for _, s := range seed {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			log.Fatalf("parse price %q: %v", s.Price, err)
		}
		p, err := model.NewPointPackage(s.ID, s.Name, s.Points, price, cfg.Billing.Currency, s.Sub)
		if err != nil {
			log.Fatalf("build package %q: %v", s.ID, err)
		}
		if err := packageRepo.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save package %q: %v", s.ID, err)
		}
		fmt.Printf("seeded package %s\n", p.ID)
	}
}
