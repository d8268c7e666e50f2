package service

import (
	"context"
	"fmt"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
)

// Jobs lists the scheduled jobs in the order a full run executes them.
var Jobs = []string{JobPlanChanges, JobBillingCycle, JobOverdue, JobDunning}

// JobRunner runs the periodic billing jobs by name, for the worker's
// scheduler and the admin trigger endpoint alike.
type JobRunner struct {
	billing       IBillingService
	subscriptions ISubscriptionService
	invoices      IInvoiceService
	logger        logger.ILogger
}

func NewJobRunner(billing IBillingService, subscriptions ISubscriptionService, invoices IInvoiceService, log logger.ILogger) *JobRunner {
	return &JobRunner{
		billing:       billing,
		subscriptions: subscriptions,
		invoices:      invoices,
		logger:        log,
	}
}

// Run executes one job. The overdue job covers cycles first and then
// invoices not tied to a cycle, so it yields two summaries.
func (r *JobRunner) Run(ctx context.Context, job string) ([]*dto.BillingRunSummary, error) {
	var (
		summaries []*dto.BillingRunSummary
		summary   *dto.BillingRunSummary
		err       error
	)

	switch job {
	case JobBillingCycle:
		summary, err = r.billing.ProcessBillingCycle(ctx)
	case JobDunning:
		summary, err = r.billing.ProcessDunning(ctx)
	case JobPlanChanges:
		summary, err = r.subscriptions.ApplyPendingPlanChanges(ctx)
	case JobOverdue:
		summary, err = r.billing.MarkOverdueCycles(ctx)
		if err == nil {
			summaries = append(summaries, summary)
			summary, err = r.invoices.MarkOverdueInvoices(ctx)
		}
	default:
		return nil, apperror.Validation("unknown job", fmt.Sprintf("job must be one of %v", Jobs))
	}
	if err != nil {
		r.logger.Error("BILLING", "Billing job failed", map[string]interface{}{
			"job":   job,
			"error": err.Error(),
		})
		return summaries, err
	}
	summaries = append(summaries, summary)

	for _, s := range summaries {
		r.logger.Info("BILLING", "Billing job finished", map[string]interface{}{
			"job":       s.Job,
			"processed": s.Processed,
			"succeeded": s.Succeeded,
			"failed":    s.Failed,
			"duration":  s.Duration,
		})
	}
	return summaries, nil
}

// RunAll executes every job once, continuing past a failing job.
func (r *JobRunner) RunAll(ctx context.Context) ([]*dto.BillingRunSummary, error) {
	var (
		all      []*dto.BillingRunSummary
		firstErr error
	)
	for _, job := range Jobs {
		summaries, err := r.Run(ctx, job)
		all = append(all, summaries...)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", job, err)
		}
	}
	return all, firstErr
}
