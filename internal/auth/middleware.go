package auth

import (
	"github.com/gofiber/fiber/v2"
)

// LocalsIdentity is the fiber.Ctx locals key holding the authenticated identity.
const LocalsIdentity = "identity"

// LocalsRole holds the token's role claim, empty when absent.
const LocalsRole = "role"

// Middleware authenticates REST requests and stores the identity in Locals.
// Tokens are accepted from the Authorization header or a token query param.
func Middleware(a *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := a.Authenticate(c.Get("Authorization"), c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}
		c.Locals(LocalsIdentity, claims.Identity())
		c.Locals(LocalsRole, claims.Role)
		return c.Next()
	}
}

// RoleFromCtx reads the role stored by Middleware.
func RoleFromCtx(c *fiber.Ctx) string {
	if v, ok := c.Locals(LocalsRole).(string); ok {
		return v
	}
	return ""
}

// IdentityFromCtx reads the identity stored by Middleware.
func IdentityFromCtx(c *fiber.Ctx) string {
	if v, ok := c.Locals(LocalsIdentity).(string); ok {
		return v
	}
	return ""
}
