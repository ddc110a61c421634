package middleware

import (
	"context"
	"strings"

	"coin-rewards-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// TokenValidator resolves an end-user access token to an identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.Identity, error)
}

// StreamAuthMiddleware validates `token` and `device_id` query params. Browsers
// cannot set headers on an EventSource, so streams authenticate this way.
//
// Usage:
//
//	app.Get("/stream/account", middleware.StreamAuthMiddleware(authClient, log), handler)
func StreamAuthMiddleware(validator TokenValidator, log *logrus.Entry) fiber.Handler {
	log = log.WithField("component", "stream_auth")

	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token or device_id in query",
			})
		}

		id, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.WithError(err).WithField("device_id", deviceID).Warn("stream token rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals(UserIDKey, id.UID)
		c.Locals(UserEmailKey, id.Email)
		c.Locals(UserRolesKey, id.Roles)
		return c.Next()
	}
}
