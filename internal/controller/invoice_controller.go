package controller

import (
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IInvoiceController interface {
	RegisterRoutes(r fiber.Router, mw Middleware)
}

type invoiceController struct {
	invoiceService  service.IInvoiceService
	providerService service.IProviderService
}

func NewInvoiceController(invoiceService service.IInvoiceService, providerService service.IProviderService) IInvoiceController {
	return &invoiceController{
		invoiceService:  invoiceService,
		providerService: providerService,
	}
}

// Tenants see their own invoices; admins see every tenant's.
func (c *invoiceController) RegisterRoutes(r fiber.Router, mw Middleware) {
	h := r.Group("/billing/invoices", mw.Auth)
	h.Get("/", c.ListInvoices)
	h.Get("/overdue", c.GetOverdueInvoices)
	h.Get("/export", c.ExportInvoices)
	h.Get("/:id", c.GetInvoice)
	h.Post("/:id/pay", c.PayInvoice)
	h.Post("/:id/send", c.SendInvoice)
	h.Post("/:id/void", c.VoidInvoice)
	h.Post("/:id/credit-notes", c.CreateCreditNote)

	h.Post("/", mw.Admin, c.CreateInvoice)
	h.Put("/:id/status", mw.Admin, c.UpdateStatus)
	h.Post("/cycles/:cycleId", mw.Admin, c.GenerateInvoice)
}

func (c *invoiceController) ListInvoices(ctx *fiber.Ctx) error {
	var req dto.ListInvoicesRequest
	if err := parseQuery(ctx, &req); err != nil {
		return err
	}
	res, err := c.invoiceService.ListInvoices(ctx.UserContext(), serverutils.TenantScope(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoices retrieved", res))
}

func (c *invoiceController) GetOverdueInvoices(ctx *fiber.Ctx) error {
	res, err := c.invoiceService.GetOverdueInvoices(ctx.UserContext(), serverutils.TenantScope(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Overdue invoices retrieved", res))
}

// ExportInvoices streams the invoice list as csv, pdf or xlsx
// @Summary Export invoices
// @Tags Invoices
// @Param format query string true "csv, pdf or xlsx"
// @Router /api/billing/invoices/export [get]
func (c *invoiceController) ExportInvoices(ctx *fiber.Ctx) error {
	var req dto.ExportInvoicesRequest
	if err := parseQuery(ctx, &req); err != nil {
		return err
	}
	file, err := c.invoiceService.ExportInvoices(ctx.UserContext(), serverutils.TenantScope(ctx), &req)
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, file.ContentType)
	ctx.Attachment(file.FileName)
	return ctx.Send(file.Content)
}

func (c *invoiceController) GetInvoice(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.invoiceService.GetInvoice(ctx.UserContext(), serverutils.TenantScope(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoice retrieved", res))
}

// PayInvoice charges the invoice through the chosen provider. Hosted
// checkouts answer with a redirect_url and a pending transaction.
func (c *invoiceController) PayInvoice(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.ProcessPaymentRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.providerService.ProcessPayment(ctx.UserContext(), serverutils.TenantScope(ctx), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment processed", res))
}

func (c *invoiceController) SendInvoice(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.invoiceService.SendInvoice(ctx.UserContext(), serverutils.TenantScope(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoice sent", res))
}

func (c *invoiceController) VoidInvoice(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.invoiceService.VoidInvoice(ctx.UserContext(), serverutils.TenantScope(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoice voided", res))
}

func (c *invoiceController) CreateCreditNote(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.CreateCreditNoteRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.invoiceService.CreateCreditNote(ctx.UserContext(), serverutils.TenantScope(ctx), id, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Credit note created", res))
}

func (c *invoiceController) CreateInvoice(ctx *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.invoiceService.CreateInvoice(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Invoice created", res))
}

func (c *invoiceController) UpdateStatus(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateInvoiceStatusRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.invoiceService.UpdateInvoiceStatus(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoice status updated", res))
}

func (c *invoiceController) GenerateInvoice(ctx *fiber.Ctx) error {
	cycleId, err := paramID(ctx, "cycleId")
	if err != nil {
		return err
	}
	res, err := c.invoiceService.GenerateInvoice(ctx.UserContext(), cycleId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Invoice generated", res))
}
