package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	controller "mailroom/controllers"
	"mailroom/mail"
	"mailroom/middleware"
)

// SetupRoutes registers the engine's HTTP surface: the inbound webhook, the
// dispatch endpoint and the thread/email read APIs.
func SetupRoutes(app *fiber.App, db *gorm.DB, mailer *mail.Mailer, reconciler *mail.Reconciler, log *logrus.Logger) {
	mailController := controller.NewMailController(db, mailer, log)
	webhookController := controller.NewWebhookController(reconciler, log)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider webhook boundary. No account middleware here: the handler
	// acknowledges every event and routing happens internally.
	webhooks := app.Group("/webhooks", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/mail/inbound", webhookController.HandleInbound)

	// API group with account resolution
	api := app.Group("/api/v1", middleware.RequireAccount(db), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	mailGroup := api.Group("/mail")
	mailGroup.Post("/send", mailController.SendEmail)
	mailGroup.Get("/sent", mailController.GetSent)
	mailGroup.Get("/inbox", mailController.GetInbox)
	mailGroup.Get("/messages/:id", mailController.GetMessage)
	mailGroup.Get("/messages/:id/replies", mailController.GetReplies)
	mailGroup.Get("/threads/:key", mailController.GetThread)
	mailGroup.Get("/threads/:key/full", mailController.GetFullThread)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("Routes initialized successfully")
}
