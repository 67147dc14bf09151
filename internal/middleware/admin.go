package middleware

import (
	"cohort/internal/config"

	"github.com/gofiber/fiber/v2"
)

// AdminMiddleware restricts a route to superadmins: users with the
// "admin" role claim or listed in SUPERADMIN_USER_IDS. Guards the
// manual clustering trigger and schedule management.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(string)
		if !ok || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		isSuperadmin := false
		if role, ok := c.Locals("user_role").(string); ok && role == "admin" {
			isSuperadmin = true
		}
		if !isSuperadmin && IsSuperadmin(userID, cfg) {
			isSuperadmin = true
		}

		if !isSuperadmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Superadmin access required",
			})
		}

		c.Locals("is_superadmin", true)
		return c.Next()
	}
}

// IsSuperadmin reports whether a user ID is in the configured superadmin list.
func IsSuperadmin(userID string, cfg *config.Config) bool {
	for _, adminID := range cfg.SuperadminUserIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}
