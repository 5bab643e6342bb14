package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// AdminOnly guards admin routes with a shared token, provided either as a
// Bearer header or the admin_token query parameter. An empty configured
// token disables the admin surface entirely.
func AdminOnly(adminToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminToken == "" {
			return fiber.NewError(fiber.StatusNotFound, "not found")
		}
		provided := c.Query("admin_token")
		if provided == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			const prefix = "Bearer "
			if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				provided = auth[len(prefix):]
			}
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
