package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hq-billing-be/internal/bootstrap"
	"hq-billing-be/internal/config"
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/service"
	"hq-billing-be/internal/tracer"
	"hq-billing-be/pkg/database"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
)

var (
	runOnce = flag.Bool("run-once", false, "Run every billing job once and exit")
	job     = flag.String("job", "", "With --run-once, run only this job ("+strings.Join(service.Jobs, ", ")+")")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Unable to connect to GORM DB: %v", err)
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Invoices generated by the jobs queue their e-mails in-process.
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Printf("Invoice mail consumer not started: %v", err)
	}

	if *runOnce {
		var (
			summaries []*dto.BillingRunSummary
			err       error
		)
		if *job != "" {
			summaries, err = container.JobRunner.Run(ctx, *job)
		} else {
			summaries, err = container.JobRunner.RunAll(ctx)
		}
		printSummaries(summaries)
		if err != nil {
			color.Red("Billing run failed: %v", err)
			os.Exit(1)
		}
		color.Green("✅ Billing run completed")
		return
	}

	if err := container.UsageEventService.Start(); err != nil {
		log.Printf("[WARN] Usage events will not be consumed: %v", err)
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	schedules := map[string]string{
		service.JobPlanChanges:  cfg.Billing.PlanChangeSchedule,
		service.JobBillingCycle: cfg.Billing.CycleSchedule,
		service.JobOverdue:      cfg.Billing.OverdueSchedule,
		service.JobDunning:      cfg.Billing.DunningSchedule,
	}
	for _, name := range service.Jobs {
		name := name
		if _, err := c.AddFunc(schedules[name], func() {
			if _, err := container.JobRunner.Run(ctx, name); err != nil {
				log.Printf("Billing job %s failed: %v", name, err)
			}
		}); err != nil {
			log.Fatalf("Invalid schedule %q for job %s: %v", schedules[name], name, err)
		}
		log.Printf("Scheduled %s: %s", name, schedules[name])
	}

	c.Start()
	log.Println("✅ Billing worker started")

	<-ctx.Done()
	log.Println("Shutting down billing worker...")
	// wait for running jobs
	<-c.Stop().Done()
}

func printSummaries(summaries []*dto.BillingRunSummary) {
	for _, s := range summaries {
		line := color.New(color.FgCyan).Sprintf("%-14s", s.Job)
		status := color.GreenString("processed=%d succeeded=%d failed=%d", s.Processed, s.Succeeded, s.Failed)
		if s.Failed > 0 {
			status = color.YellowString("processed=%d succeeded=%d failed=%d", s.Processed, s.Succeeded, s.Failed)
		}
		log.Printf("%s %s (%s)", line, status, s.Duration)
		for _, r := range s.Results {
			if r.Error != "" {
				color.Red("  %s: %s", r.SubscriptionId, r.Error)
			}
		}
	}
}
