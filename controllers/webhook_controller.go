package controller

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailroom/mail"
)

type WebhookController struct {
	reconciler *mail.Reconciler
	logger     *logrus.Logger
}

func NewWebhookController(reconciler *mail.Reconciler, logger *logrus.Logger) *WebhookController {
	return &WebhookController{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleInbound processes provider webhook events. The provider retries on
// anything but a success acknowledgment, so this handler answers 200 no
// matter what happened internally; routing failures only surface in logs.
func (wc *WebhookController) HandleInbound(c *fiber.Ctx) error {
	var event mail.InboundEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		wc.logger.WithError(err).Warn("Unparseable webhook payload acknowledged")
		return c.JSON(fiber.Map{"received": true})
	}

	result := wc.reconciler.Reconcile(c.Context(), &event)
	if result == nil {
		return c.JSON(fiber.Map{"received": true})
	}

	return c.JSON(fiber.Map{
		"received": true,
		"kind":     result.Kind,
	})
}
