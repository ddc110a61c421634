package middleware

import (
	"strings"

	"coin-rewards-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserRolesKey = "user_roles"
)

// UserContextMiddleware extracts the caller identity the gateway forwards in
// X-User-ID, X-User-Email and X-User-Roles. Requests without a user id are rejected.
func UserContextMiddleware(log *logrus.Entry) fiber.Handler {
	log = log.WithField("component", "user_context")

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" || strings.Contains(userID, "/") {
			log.WithField("path", c.Path()).Warn("X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		c.Locals(UserIDKey, userID)
		c.Locals(UserEmailKey, strings.TrimSpace(c.Get("X-User-Email")))
		c.Locals(UserRolesKey, splitRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

func splitRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Identity returns the caller attached by UserContextMiddleware or StreamAuthMiddleware.
func Identity(c *fiber.Ctx) services.Identity {
	id := services.Identity{}
	id.UID, _ = c.Locals(UserIDKey).(string)
	id.Email, _ = c.Locals(UserEmailKey).(string)
	id.Roles, _ = c.Locals(UserRolesKey).([]string)
	return id
}
