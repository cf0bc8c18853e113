package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requesterHeader = "X-User-Id"

// RequesterID extracts the authenticated user id injected by the upstream
// gateway and makes it available to handlers. Requests without a valid id are
// rejected; authentication itself happens outside this service.
func RequesterID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(requesterHeader)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing X-User-Id header")
		}
		if _, err := uuid.Parse(userID); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid X-User-Id header")
		}

		c.Locals("user_id", userID)

		return c.Next()
	}
}
