package middleware

import (
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const adminRole = "admin"

// RequireAdmin lets through callers with the admin role or a uid listed in adminUIDs.
// It must run after UserContextMiddleware.
func RequireAdmin(adminUIDs []string, log *logrus.Entry) fiber.Handler {
	log = log.WithField("component", "require_admin")

	return func(c *fiber.Ctx) error {
		id := Identity(c)
		if slices.Contains(id.Roles, adminRole) || slices.Contains(adminUIDs, id.UID) {
			return c.Next()
		}
		log.WithFields(logrus.Fields{"uid": id.UID, "path": c.Path()}).Warn("admin route refused")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin access required",
		})
	}
}
