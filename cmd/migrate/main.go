package main

import (
	"log"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/model"
	"hq-billing-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting billing schema migration...")

	// 1. Extensions
	log.Println("Step 1: Setting up extensions...")
	setupSQL := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}
	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}

	// 2. Tables
	models := model.AllModels()
	log.Printf("Step 2: Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 3. Constraints AutoMigrate cannot express
	log.Println("Step 3: Creating partial indexes and views...")
	postMigrationSQL := []string{
		// at most one open subscription per tenant
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_open_tenant
		 ON subscriptions (tenant_id)
		 WHERE status IN ('trial', 'active', 'past_due');`,

		// one default payment method per tenant
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_methods_default_tenant
		 ON payment_methods (tenant_id)
		 WHERE is_default;`,

		`CREATE OR REPLACE VIEW tenant_revenue AS
		 SELECT i.tenant_id, i.currency, date_trunc('month', i.paid_date) AS month, SUM(i.total_amount) AS revenue
		 FROM invoices i
		 WHERE i.status = 'paid'
		 GROUP BY i.tenant_id, i.currency, date_trunc('month', i.paid_date);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Billing schema migrated.")
}
