package controller

import (
	"strings"

	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Middleware groups the handlers controllers put in front of protected routes.
type Middleware struct {
	Auth  fiber.Handler
	Admin fiber.Handler
}

func NewMiddleware(jwtSecret string) Middleware {
	return Middleware{
		Auth:  serverutils.JwtMiddleware(jwtSecret),
		Admin: serverutils.RequireRole(serverutils.RoleAdmin),
	}
}

func paramID(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid request", name+" must be a UUID")
	}
	return id, nil
}

func queryID(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid request", name+" must be a UUID")
	}
	return id, nil
}

func queryIDs(ctx *fiber.Ctx, name string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, raw := range strings.Split(ctx.Query(name), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperror.Validation("invalid request", name+" must be a comma separated list of UUIDs")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func tenantOf(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, ok := serverutils.TenantID(ctx)
	if !ok {
		return uuid.Nil, apperror.Unauthorized("missing tenant")
	}
	return id, nil
}

func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return apperror.Validation("invalid request body", err.Error())
	}
	return serverutils.ValidateRequest(req)
}

func parseQuery(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.QueryParser(req); err != nil {
		return apperror.Validation("invalid query", err.Error())
	}
	return serverutils.ValidateRequest(req)
}
