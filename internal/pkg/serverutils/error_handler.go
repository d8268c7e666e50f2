package serverutils

import (
	"errors"

	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error kind to the HTTP status clients see.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindInvalidState, apperror.KindValidation, apperror.KindConflict:
		return fiber.StatusBadRequest
	case apperror.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperror.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by handlers into the response
// envelope. Internal errors are logged and answered with a generic message.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, log, err)
	}
}

func WriteError(ctx *fiber.Ctx, log logger.ILogger, err error) error {
	status := StatusFor(err)

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind == apperror.KindValidation {
		return ctx.Status(status).JSON(ValidationErrorResponse(appErr.Message, appErr.Details))
	}

	if status == fiber.StatusInternalServerError {
		log.Error("HTTP", "Request failed", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err.Error(),
		})
		message := "internal server error"
		if appErr != nil && appErr.Kind != apperror.KindInternal {
			message = appErr.Message
		}
		return ctx.Status(status).JSON(ErrorResponse(status, message))
	}

	message := err.Error()
	if appErr != nil {
		message = appErr.Message
	}
	return ctx.Status(status).JSON(ErrorResponse(status, message))
}
