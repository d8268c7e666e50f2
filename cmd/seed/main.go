package main

import (
	"context"
	"log"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/memory"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/internal/service"
	"hq-billing-be/pkg/database"

	"github.com/shopspring/decimal"
)

// Default catalog. Limits of -1 are unlimited.
var catalog = []dto.CreatePlanRequest{
	{
		Name:            "Starter",
		Description:     "For small teams getting started",
		Price:           decimal.RequireFromString("19.00"),
		BillingInterval: "monthly",
		TrialDays:       14,
		Features:        []string{"api_access", "email_support"},
		SortOrder:       1,
		Limits: []dto.PlanLimitRequest{
			{MetricName: "api_calls", MaxValue: 10000, Unit: "calls", IsSoftLimit: true, OverageRate: decimal.RequireFromString("0.002")},
			{MetricName: "storage_gb", MaxValue: 5, Unit: "GB"},
			{MetricName: "seats", MaxValue: 3, Unit: "seats"},
		},
	},
	{
		Name:            "Growth",
		Description:     "For growing teams with heavier usage",
		Price:           decimal.RequireFromString("79.00"),
		BillingInterval: "monthly",
		TrialDays:       14,
		Features:        []string{"api_access", "email_support", "sso", "audit_log"},
		SortOrder:       2,
		Limits: []dto.PlanLimitRequest{
			{MetricName: "api_calls", MaxValue: 100000, Unit: "calls", IsSoftLimit: true, OverageRate: decimal.RequireFromString("0.0015")},
			{MetricName: "storage_gb", MaxValue: 50, Unit: "GB", IsSoftLimit: true, OverageRate: decimal.RequireFromString("0.10")},
			{MetricName: "seats", MaxValue: 25, Unit: "seats"},
		},
	},
	{
		Name:            "Scale",
		Description:     "Unlimited usage and priority support",
		Price:           decimal.RequireFromString("2990.00"),
		BillingInterval: "yearly",
		Features:        []string{"api_access", "priority_support", "sso", "audit_log", "dedicated_manager"},
		SortOrder:       3,
		Limits: []dto.PlanLimitRequest{
			{MetricName: "api_calls", MaxValue: -1, Unit: "calls"},
			{MetricName: "storage_gb", MaxValue: 1000, Unit: "GB", IsSoftLimit: true, OverageRate: decimal.RequireFromString("0.05")},
			{MetricName: "seats", MaxValue: -1, Unit: "seats"},
		},
	},
}

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	ctx := context.Background()
	plans := service.NewPlanService(
		unitofwork.NewRepositoryFactory(db),
		memory.NewPlanCache(cfg.Billing.PlanCacheTTL),
		logger.NewZapLogger(cfg.App.LogFilePath, false),
	)

	existing, err := plans.GetAvailablePlans(ctx)
	if err != nil {
		log.Fatalf("Error: Failed to load plans: %v", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.Name] = true
	}

	log.Println("Seeding plan catalog...")
	for i := range catalog {
		req := catalog[i]
		if seen[req.Name] {
			log.Printf("Plan '%s' already exists, skipping...", req.Name)
			continue
		}
		req.Currency = cfg.Billing.DefaultCurrency
		p, err := plans.CreatePlan(ctx, &req)
		if err != nil {
			log.Fatalf("Error: Failed to create plan %s: %v", req.Name, err)
		}
		log.Printf("Created plan '%s' (%s)", p.Name, p.Id)
	}

	log.Println("✅ Seeding completed")
}
