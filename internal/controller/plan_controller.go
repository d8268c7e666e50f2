// Controller for the plan catalogue
package controller

import (
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IPlanController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type planController struct {
	planService service.IPlanService
}

func NewPlanController(planService service.IPlanService) IPlanController {
	return &planController{planService: planService}
}

func (c *planController) RegisterRoutes(r fiber.Router, mw Middleware) {
	h := r.Group("/billing/plans")

	// Public catalogue
	h.Get("/", c.GetPlans)
	h.Get("/compare", c.ComparePlans)
	h.Post("/recommend", c.RecommendPlan)
	h.Get("/:id", c.GetPlan)

	// Admin
	h.Post("/", mw.Auth, mw.Admin, c.CreatePlan)
	h.Put("/:id", mw.Auth, mw.Admin, c.UpdatePlan)
	h.Put("/:id/limits", mw.Auth, mw.Admin, c.UpdatePlanLimits)
	h.Delete("/:id", mw.Auth, mw.Admin, c.DeletePlan)
}

// GetPlans returns active plans, cheapest first
// @Summary List available plans
// @Tags Plans
// @Produce json
// @Router /api/billing/plans [get]
func (c *planController) GetPlans(ctx *fiber.Ctx) error {
	plans, err := c.planService.GetAvailablePlans(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plans retrieved", plans))
}

func (c *planController) GetPlan(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	plan, err := c.planService.GetPlan(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plan retrieved", plan))
}

// ComparePlans lines up two or more plans side by side
// @Summary Compare plans
// @Tags Plans
// @Param plan_ids query string true "comma separated plan ids"
// @Router /api/billing/plans/compare [get]
func (c *planController) ComparePlans(ctx *fiber.Ctx) error {
	ids, err := queryIDs(ctx, "plan_ids")
	if err != nil {
		return err
	}
	req := dto.ComparePlansRequest{PlanIds: ids}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	res, err := c.planService.ComparePlans(ctx.UserContext(), req.PlanIds)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plans compared", res))
}

func (c *planController) RecommendPlan(ctx *fiber.Ctx) error {
	var req dto.RecommendPlanRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.planService.GetRecommendedPlan(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plans ranked", res))
}

func (c *planController) CreatePlan(ctx *fiber.Ctx) error {
	var req dto.CreatePlanRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	plan, err := c.planService.CreatePlan(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Plan created", plan))
}

func (c *planController) UpdatePlan(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.UpdatePlanRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	plan, err := c.planService.UpdatePlan(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plan updated", plan))
}

func (c *planController) UpdatePlanLimits(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.UpdatePlanLimitsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	plan, err := c.planService.UpdatePlanLimits(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plan limits updated", plan))
}

func (c *planController) DeletePlan(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.planService.DeletePlan(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Plan deactivated", nil))
}
