package controller

import (
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IWebhookController interface {
	RegisterRoutes(r fiber.Router)
}

type webhookController struct {
	service service.IProviderService
	logger  logger.ILogger
}

func NewWebhookController(service service.IProviderService, logger logger.ILogger) IWebhookController {
	return &webhookController{service: service, logger: logger}
}

// Webhooks are public; the payload signature is the authentication.
func (c *webhookController) RegisterRoutes(r fiber.Router) {
	r.Post("/billing/webhooks/:provider", c.Handle)
}

// Handle answers 2xx for anything the provider should not resend, including
// events for unknown orders. Storage failures answer 500 so it retries.
func (c *webhookController) Handle(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")

	headers := make(map[string]string)
	for k, v := range ctx.GetReqHeaders() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), ctx.Body()...)

	res, err := c.service.HandleWebhook(ctx.UserContext(), provider, payload, headers)
	if err != nil {
		c.logger.Warn("WEBHOOK", "Webhook not processed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Webhook received", res))
}
