package controller

import (
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IBillingController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type billingController struct {
	billingService      service.IBillingService
	subscriptionService service.ISubscriptionService
	jobs                *service.JobRunner
	logger              logger.ILogger
}

func NewBillingController(
	billingService service.IBillingService,
	subscriptionService service.ISubscriptionService,
	jobs *service.JobRunner,
	logger logger.ILogger,
) IBillingController {
	return &billingController{
		billingService:      billingService,
		subscriptionService: subscriptionService,
		jobs:                jobs,
		logger:              logger,
	}
}

func (c *billingController) RegisterRoutes(r fiber.Router, mw Middleware) {
	r.Get("/billing/analytics", mw.Auth, mw.Admin, c.Analytics)

	admin := r.Group("/billing/admin", mw.Auth, mw.Admin)
	admin.Post("/jobs/:job", c.RunJob)
	admin.Post("/cycles", c.CreateBillingCycle)
	admin.Get("/subscriptions", c.ListSubscriptions)
	admin.Get("/logs", c.GetLogs)
	admin.Get("/logs/:id", c.GetLog)
}

// Analytics reports revenue metrics for a period keyword
// @Summary Billing analytics
// @Tags Billing
// @Param period query string false "today, last_7_days, current_month, ..."
// @Param type query string false "overview, mrr, churn or arpu"
// @Router /api/billing/analytics [get]
func (c *billingController) Analytics(ctx *fiber.Ctx) error {
	period := ctx.Query("period", "current_month")
	var (
		res interface{}
		err error
	)
	switch ctx.Query("type", "overview") {
	case "overview":
		res, err = c.billingService.GetBillingAnalytics(ctx.UserContext(), period)
	case "mrr":
		res, err = c.billingService.GetMRR(ctx.UserContext(), period)
	case "churn":
		res, err = c.billingService.GetChurnRate(ctx.UserContext(), period)
	case "arpu":
		res, err = c.billingService.GetARPU(ctx.UserContext(), period)
	default:
		return apperror.Validation("invalid query", "type must be one of [overview mrr churn arpu]")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Analytics retrieved", res))
}

func (c *billingController) RunJob(ctx *fiber.Ctx) error {
	job := ctx.Params("job")
	summaries, err := c.jobs.Run(ctx.UserContext(), job)
	if err != nil {
		return err
	}
	c.logger.Info("BILLING", "Billing job triggered manually", map[string]interface{}{
		"job":     job,
		"user_id": ctx.Locals(serverutils.LocalUserID),
	})
	return ctx.JSON(serverutils.SuccessResponse("Job finished", dto.RunJobResponse{Job: job, Summaries: summaries}))
}

func (c *billingController) CreateBillingCycle(ctx *fiber.Ctx) error {
	var req dto.CreateBillingCycleRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	cycle, err := c.billingService.CreateBillingCycle(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Billing cycle created", cycle))
}

func (c *billingController) ListSubscriptions(ctx *fiber.Ctx) error {
	var req dto.ListSubscriptionsRequest
	if err := parseQuery(ctx, &req); err != nil {
		return err
	}
	planId, err := queryID(ctx, "plan_id")
	if err != nil {
		return err
	}
	req.PlanId = planId

	res, err := c.subscriptionService.ListSubscriptions(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscriptions retrieved", res))
}

func (c *billingController) GetLogs(ctx *fiber.Ctx) error {
	var req dto.ListLogsRequest
	if err := parseQuery(ctx, &req); err != nil {
		return err
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	entries, err := c.logger.GetLogs(logger.LogFilter{Level: req.Level, Module: req.Module}, req.Limit, req.Offset)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Logs retrieved", entries))
}

func (c *billingController) GetLog(ctx *fiber.Ctx) error {
	entry, err := c.logger.GetLogById(ctx.Params("id"))
	if err != nil {
		return err
	}
	if entry == nil {
		return apperror.NotFound("log entry not found")
	}
	return ctx.JSON(serverutils.SuccessResponse("Log retrieved", entry))
}
