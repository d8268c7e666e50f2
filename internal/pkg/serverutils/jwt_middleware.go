package serverutils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	LocalTenantID = "tenant_id"
	LocalUserID   = "user_id"
	LocalRole     = "role"

	RoleAdmin = "admin"
)

// JwtMiddleware accepts HS256 bearer tokens signed with secret and stores
// the tenant, user and role claims in the request locals.
func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}

		tenant, _ := claims["tenant_id"].(string)
		tenantId, err := uuid.Parse(tenant)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Token has no tenant"))
		}
		role, _ := claims["role"].(string)

		ctx.Locals(LocalTenantID, tenantId)
		ctx.Locals(LocalUserID, claims["user_id"])
		ctx.Locals(LocalRole, role)
		return ctx.Next()
	}
}

func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if r, _ := ctx.Locals(LocalRole).(string); r != role {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(fiber.StatusForbidden, "Forbidden"))
		}
		return ctx.Next()
	}
}

// TenantID returns the tenant set by JwtMiddleware.
func TenantID(ctx *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := ctx.Locals(LocalTenantID).(uuid.UUID)
	return id, ok
}

func IsAdmin(ctx *fiber.Ctx) bool {
	r, _ := ctx.Locals(LocalRole).(string)
	return r == RoleAdmin
}

// TenantScope is nil for admins, who may act on any tenant's records.
func TenantScope(ctx *fiber.Ctx) *uuid.UUID {
	if IsAdmin(ctx) {
		return nil
	}
	if id, ok := TenantID(ctx); ok {
		return &id
	}
	return nil
}
