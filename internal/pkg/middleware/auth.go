package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": "authentication required",
	})
}

func forbidden(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":   "forbidden",
		"message": message,
	})
}

// RequireAuth ensures an authenticated principal.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c)
	}
	return c.Next()
}

// RequireCreator ensures the principal has the creator role.
func RequireCreator(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return unauthorized(c)
	}
	if !uc.IsCreator {
		return forbidden(c, "creator role required")
	}
	return c.Next()
}

// RequireAdmin ensures the principal has the admin role.
func RequireAdmin(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return unauthorized(c)
	}
	if !uc.IsAdmin {
		return forbidden(c, "admin role required")
	}
	return c.Next()
}
