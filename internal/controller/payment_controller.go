package controller

import (
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IPaymentController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type paymentController struct {
	service service.IProviderService
}

func NewPaymentController(service service.IProviderService) IPaymentController {
	return &paymentController{service: service}
}

func (c *paymentController) RegisterRoutes(r fiber.Router, mw Middleware) {
	methods := r.Group("/billing/payment-methods", mw.Auth)
	methods.Get("/", c.GetPaymentMethods)
	methods.Post("/", c.AddPaymentMethod)
	methods.Delete("/:id", c.RemovePaymentMethod)
	methods.Put("/:id/default", c.SetDefault)

	payments := r.Group("/billing/payments", mw.Auth)
	payments.Get("/", c.ListTransactions)
	payments.Get("/:id/status", c.GetStatus)
	payments.Post("/:id/refund", mw.Admin, c.Refund)
}

func (c *paymentController) GetPaymentMethods(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.GetPaymentMethods(ctx.UserContext(), tenantId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment methods retrieved", res))
}

func (c *paymentController) AddPaymentMethod(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	var req dto.AddPaymentMethodRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.AddPaymentMethod(ctx.UserContext(), tenantId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Payment method added", res))
}

func (c *paymentController) RemovePaymentMethod(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.service.RemovePaymentMethod(ctx.UserContext(), tenantId, id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment method removed", nil))
}

func (c *paymentController) SetDefault(ctx *fiber.Ctx) error {
	tenantId, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.service.SetDefaultPaymentMethod(ctx.UserContext(), tenantId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Default payment method set", res))
}

func (c *paymentController) ListTransactions(ctx *fiber.Ctx) error {
	var req dto.ListTransactionsRequest
	if err := parseQuery(ctx, &req); err != nil {
		return err
	}
	invoiceId, err := queryID(ctx, "invoice_id")
	if err != nil {
		return err
	}
	req.InvoiceId = invoiceId

	res, err := c.service.ListTransactions(ctx.UserContext(), serverutils.TenantScope(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Transactions retrieved", res))
}

// GetStatus asks the provider about an in-flight payment, which is how a
// timed out charge gets reconciled.
func (c *paymentController) GetStatus(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.service.GetPaymentStatus(ctx.UserContext(), serverutils.TenantScope(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment status", res))
}

func (c *paymentController) Refund(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.RefundPaymentRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.RefundPayment(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment refunded", res))
}
