package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailroom/mail"
	"mailroom/models"
	"mailroom/utils"
)

type MailController struct {
	db        *gorm.DB
	mailer    *mail.Mailer
	projector *mail.Projector
	logger    *logrus.Logger
}

func NewMailController(db *gorm.DB, mailer *mail.Mailer, logger *logrus.Logger) *MailController {
	return &MailController{
		db:        db,
		mailer:    mailer,
		projector: mail.NewProjector(db),
		logger:    logger,
	}
}

type RecipientInput struct {
	Address string `json:"address" validate:"required,email"`
	Name    string `json:"name"`
}

type SendEmailRequest struct {
	To          []RecipientInput `json:"to" validate:"required,min=1,dive"`
	Subject     string           `json:"subject" validate:"required"`
	Body        string           `json:"body"`
	BodyHTML    string           `json:"body_html"`
	Attachments []string         `json:"attachments"`
	ThreadID    string           `json:"thread_id"`
	RoleHint    string           `json:"role_hint"`
	IsKYC       bool             `json:"is_kyc"`
	ContactID   *uint            `json:"contact_id"`
}

// SendEmail dispatches an outbound message on behalf of the account.
func (mc *MailController) SendEmail(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(uint)

	var req SendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	recipients := make([]models.Recipient, 0, len(req.To))
	for _, r := range req.To {
		recipients = append(recipients, models.Recipient{Address: r.Address, Name: r.Name})
	}

	msg, err := mc.mailer.Send(c.Context(), &mail.SendInput{
		AccountID:   accountID,
		Recipients:  recipients,
		Subject:     req.Subject,
		Body:        req.Body,
		BodyHTML:    req.BodyHTML,
		Attachments: req.Attachments,
		RoleHint:    req.RoleHint,
		ThreadID:    req.ThreadID,
		IsKYC:       req.IsKYC,
		ContactID:   req.ContactID,
	})
	if err != nil {
		var verr *mail.ValidationError
		switch {
		case errors.As(err, &verr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": verr.Message,
			})
		case errors.Is(err, mail.ErrAccountNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Account not found",
			})
		default:
			mc.logger.WithError(err).Error("Send failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to send email",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetSent returns the account's outbound messages, paginated.
func (mc *MailController) GetSent(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(uint)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	messages, total, err := mc.projector.ListSent(accountID, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sent messages",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetInbox returns the account's conversations, one row per thread.
func (mc *MailController) GetInbox(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(uint)

	filter := &mail.InboxFilter{
		Status:    c.Query("status"),
		ThreadKey: c.Query("thread_key"),
		Page:      c.QueryInt("page", 1),
		Limit:     c.QueryInt("limit", 20),
	}
	if c.Query("is_kyc") != "" {
		filter.IsKYC = utils.Pointer(c.QueryBool("is_kyc"))
	}
	if c.Query("contact_id") != "" {
		filter.ContactID = utils.Pointer(utils.ParseUint(c.Query("contact_id")))
	}

	entries, total, err := mc.projector.ListInbox(accountID, filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch inbox",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  entries,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// GetMessage returns a single message with its replies.
func (mc *MailController) GetMessage(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(uint)
	messageID := c.Params("id")

	var msg models.EmailMessage
	if err := mc.db.Where("id = ? AND account_id = ?", messageID, accountID).
		Preload("Identity").
		Preload("Replies").
		First(&msg).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Message not found",
		})
	}

	return c.JSON(msg)
}

// GetReplies returns the replies attached to one message.
func (mc *MailController) GetReplies(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(uint)
	messageID := utils.ParseUint(c.Params("id"))

	var msg models.EmailMessage
	if err := mc.db.Where("id = ? AND account_id = ?", messageID, accountID).First(&msg).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Message not found",
		})
	}

	replies, err := mc.projector.Replies(messageID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch replies",
		})
	}

	return c.JSON(replies)
}

// GetThread returns the messages of one thread by its key.
func (mc *MailController) GetThread(c *fiber.Ctx) error {
	messages, err := mc.projector.ThreadMessages(c.Params("key"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch thread",
		})
	}
	if len(messages) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Thread not found",
		})
	}

	return c.JSON(messages)
}

// GetFullThread returns the complete merged conversation for a thread key
// or a root message id, and marks its inbound records read.
func (mc *MailController) GetFullThread(c *fiber.Ctx) error {
	entries, threadKey, err := mc.projector.ListThread(c.Params("key"))
	if err != nil {
		if errors.Is(err, mail.ErrThreadNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Thread not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch thread",
		})
	}

	if err := mc.projector.MarkThreadRead(threadKey); err != nil {
		mc.logger.WithError(err).Warn("Failed to mark thread read")
	}

	return c.JSON(entries)
}
