package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailroom/models"
)

// RequireAccount resolves the calling account from the X-Account-ID header
// set by the upstream gateway. Authentication policy lives outside this
// service; this only binds the already-authenticated account to the request.
func RequireAccount(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-Account-ID")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing X-Account-ID header",
			})
		}

		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid X-Account-ID header",
			})
		}

		var account models.Account
		if err := db.First(&account, uint(id)).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unknown account",
			})
		}

		c.Locals("accountID", account.ID)
		c.Locals("account", &account)
		return c.Next()
	}
}
