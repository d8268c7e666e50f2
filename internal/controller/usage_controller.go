package controller

import (
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IUsageController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type usageController struct {
	usageService service.IUsageService
}

func NewUsageController(usageService service.IUsageService) IUsageController {
	return &usageController{usageService: usageService}
}

func (c *usageController) RegisterRoutes(r fiber.Router, mw Middleware) {
	h := r.Group("/billing/usage", mw.Auth)
	h.Post("/", c.TrackUsage)
	h.Get("/check", c.CheckUsage)
	h.Get("/overage", c.OverageCharges)
	h.Get("/analytics", c.Analytics)
	h.Get("/trends", c.Trends)
}

func (c *usageController) TrackUsage(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	var req dto.TrackUsageRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.usageService.TrackUsage(ctx.UserContext(), tenantId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Usage recorded", res))
}

func (c *usageController) CheckUsage(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	subId, err := queryID(ctx, "subscription_id")
	if err != nil {
		return err
	}
	var subscriptionId *uuid.UUID
	if subId != uuid.Nil {
		subscriptionId = &subId
	}
	res, err := c.usageService.CheckUsageAgainstLimits(ctx.UserContext(), tenantId, subscriptionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Usage checked", res))
}

// OverageCharges sums billable overage between start and end (RFC 3339).
func (c *usageController) OverageCharges(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}

	var v apperror.Collector
	start, startErr := time.Parse(time.RFC3339, ctx.Query("start"))
	v.Check(startErr == nil, "start must be an RFC 3339 timestamp")
	end, endErr := time.Parse(time.RFC3339, ctx.Query("end"))
	v.Check(endErr == nil, "end must be an RFC 3339 timestamp")
	if err := v.Err("invalid query"); err != nil {
		return err
	}

	res, err := c.usageService.CalculateOverageCharges(ctx.UserContext(), tenantId, start, end)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Overage charges calculated", res))
}

func (c *usageController) Analytics(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	res, err := c.usageService.GetUsageAnalytics(ctx.UserContext(), tenantId, ctx.Query("period", "current_month"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Usage analytics", res))
}

func (c *usageController) Trends(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	metric := ctx.Query("metric")
	if metric == "" {
		return apperror.Validation("invalid query", "metric is required")
	}
	res, err := c.usageService.GetUsageTrends(ctx.UserContext(), tenantId, metric, ctx.Query("period", "last_30_days"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Usage trends", res))
}
