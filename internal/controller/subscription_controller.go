package controller

import (
	"context"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ISubscriptionController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type subscriptionController struct {
	subscriptionService service.ISubscriptionService
}

func NewSubscriptionController(subscriptionService service.ISubscriptionService) ISubscriptionController {
	return &subscriptionController{subscriptionService: subscriptionService}
}

// Routes act on the caller's tenant subscription; the tenant comes from the token.
func (c *subscriptionController) RegisterRoutes(r fiber.Router, mw Middleware) {
	h := r.Group("/billing/subscription", mw.Auth)
	h.Get("/", c.GetSubscription)
	h.Post("/", c.CreateSubscription)
	h.Put("/", c.ChangePlan)
	h.Delete("/", c.CancelSubscription)
	h.Post("/pause", c.PauseSubscription)
	h.Post("/resume", c.ResumeSubscription)
	h.Post("/reactivate", c.ReactivateSubscription)
	h.Get("/health", c.Health)
}

// current resolves the tenant's subscription id.
func (c *subscriptionController) current(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	sub, err := c.subscriptionService.GetTenantSubscription(ctx.UserContext(), tenantId)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenantId, sub.Id, nil
}

func (c *subscriptionController) GetSubscription(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	sub, err := c.subscriptionService.GetTenantSubscription(ctx.UserContext(), tenantId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription retrieved", sub))
}

// CreateSubscription subscribes the tenant and bills the first period
// @Summary Create subscription
// @Tags Subscription
// @Security BearerAuth
// @Router /api/billing/subscription [post]
func (c *subscriptionController) CreateSubscription(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	var req dto.CreateSubscriptionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.subscriptionService.CreateSubscription(ctx.UserContext(), tenantId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Subscription created", res))
}

func (c *subscriptionController) ChangePlan(ctx *fiber.Ctx) error {
	tenantId, subId, err := c.current(ctx)
	if err != nil {
		return err
	}
	var req dto.UpdateSubscriptionPlanRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.subscriptionService.UpdateSubscriptionPlan(ctx.UserContext(), &tenantId, subId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription plan changed", res))
}

// CancelSubscription accepts an optional body; an empty one cancels
// immediately.
func (c *subscriptionController) CancelSubscription(ctx *fiber.Ctx) error {
	tenantId, subId, err := c.current(ctx)
	if err != nil {
		return err
	}
	var req dto.CancelSubscriptionRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}
	if ctx.QueryBool("at_period_end") {
		req.AtPeriodEnd = true
	}
	res, err := c.subscriptionService.CancelSubscription(ctx.UserContext(), &tenantId, subId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription cancelled", res))
}

func (c *subscriptionController) PauseSubscription(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Subscription paused", c.subscriptionService.PauseSubscription)
}

func (c *subscriptionController) ResumeSubscription(ctx *fiber.Ctx) error {
	return c.transition(ctx, "Subscription resumed", c.subscriptionService.ResumeSubscription)
}

func (c *subscriptionController) transition(
	ctx *fiber.Ctx,
	message string,
	fn func(context.Context, *uuid.UUID, uuid.UUID) (*dto.SubscriptionResponse, error),
) error {
	tenantId, subId, err := c.current(ctx)
	if err != nil {
		return err
	}
	res, err := fn(ctx.UserContext(), &tenantId, subId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(message, res))
}

func (c *subscriptionController) ReactivateSubscription(ctx *fiber.Ctx) error {
	tenantId, subId, err := c.current(ctx)
	if err != nil {
		return err
	}
	res, err := c.subscriptionService.ReactivateSubscription(ctx.UserContext(), &tenantId, subId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription reactivated", res))
}

func (c *subscriptionController) Health(ctx *fiber.Ctx) error {
	tenantId, subId, err := c.current(ctx)
	if err != nil {
		return err
	}
	res, err := c.subscriptionService.CalculateSubscriptionHealth(ctx.UserContext(), &tenantId, subId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription health", res))
}
