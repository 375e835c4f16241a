package mail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailroom/models"
)

// Mailer dispatches outbound mail through the injected provider and owns
// identity resolution. A nil provider is the explicit disabled mode: sends
// are recorded as delivered without a network attempt.
type Mailer struct {
	db            *gorm.DB
	provider      Provider
	sendingDomain string
	logger        *logrus.Logger
}

func NewMailer(db *gorm.DB, provider Provider, sendingDomain string, logger *logrus.Logger) *Mailer {
	return &Mailer{
		db:            db,
		provider:      provider,
		sendingDomain: sendingDomain,
		logger:        logger,
	}
}

// SendInput carries one send request.
type SendInput struct {
	AccountID   uint
	Recipients  []models.Recipient
	Subject     string
	Body        string
	BodyHTML    string
	Attachments []string
	RoleHint    string

	// ThreadID continues an existing conversation; empty starts a new one.
	ThreadID  string
	IsKYC     bool
	ContactID *uint
}

// Send validates, persists a pending message, fans out one provider call per
// recipient and aggregates the outcomes into the message's terminal status.
// The pending row is written before any network call so a crashed dispatch
// still leaves an auditable record.
func (m *Mailer) Send(ctx context.Context, input *SendInput) (*models.EmailMessage, error) {
	if err := validateSend(input); err != nil {
		return nil, err
	}

	identity, err := m.ResolveIdentity(input.AccountID, input.RoleHint)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	threadKey := input.ThreadID
	if threadKey == "" {
		threadKey = token
	}

	msg := models.EmailMessage{
		AccountID:      input.AccountID,
		IdentityID:     identity.ID,
		Subject:        input.Subject,
		Body:           input.Body,
		BodyHTML:       input.BodyHTML,
		Recipients:     input.Recipients,
		Attachments:    input.Attachments,
		Status:         models.MessageStatusPending,
		ThreadKey:      threadKey,
		ReplyToken:     token,
		ReplyToAddress: fmt.Sprintf("reply+%s@%s", token, m.sendingDomain),
		MessageID:      fmt.Sprintf("<%s@%s>", token, m.sendingDomain),
		IsKYC:          input.IsKYC,
		ContactID:      input.ContactID,
	}
	if err := m.db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if m.provider == nil {
		// Disabled mode: no delivery attempt, marked sent immediately.
		if err := m.db.Model(&msg).Update("status", models.MessageStatusSent).Error; err != nil {
			return nil, err
		}
		msg.Status = models.MessageStatusSent
		msg.Identity = *identity
		return &msg, nil
	}

	results := m.fanOut(ctx, &msg, identity)

	var providerID string
	var errParts []string
	for _, r := range results {
		if r.Error == "" && providerID == "" {
			providerID = r.ProviderID
		}
		if r.Error != "" {
			errParts = append(errParts, fmt.Sprintf("%s: %s", r.Recipient, r.Error))
		}
	}

	status := models.MessageStatusFailed
	if providerID != "" {
		status = models.MessageStatusSent
	}
	errorDetail := strings.Join(errParts, "; ")

	updates := map[string]interface{}{
		"status":           status,
		"provider_id":      providerID,
		"error_detail":     errorDetail,
		"delivery_results": models.DeliveryResultList(results),
	}
	if err := m.db.Model(&msg).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record delivery outcome: %w", err)
	}

	msg.Status = status
	msg.ProviderID = providerID
	msg.ErrorDetail = errorDetail
	msg.DeliveryResults = results
	msg.Identity = *identity

	m.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"thread_key": msg.ThreadKey,
		"recipients": len(msg.Recipients),
		"status":     status,
	}).Info("Dispatch completed")

	return &msg, nil
}

// fanOut performs one provider call per recipient concurrently and waits for
// all outcomes; no recipient failure aborts its siblings.
func (m *Mailer) fanOut(ctx context.Context, msg *models.EmailMessage, identity *models.SenderIdentity) []models.DeliveryResult {
	html := renderHTML(msg.Body, msg.BodyHTML)

	results := make([]models.DeliveryResult, len(msg.Recipients))
	var wg sync.WaitGroup
	for i, rcpt := range msg.Recipients {
		wg.Add(1)
		go func(i int, rcpt models.Recipient) {
			defer wg.Done()

			providerID, err := m.provider.Send(ctx, &ProviderMessage{
				FromAddress: identity.Address,
				FromName:    identity.DisplayName,
				To:          rcpt.Address,
				ReplyTo:     msg.ReplyToAddress,
				Subject:     msg.Subject,
				HTML:        html,
				Text:        msg.Body,
				Headers: map[string]string{
					"Message-Id":       msg.MessageID,
					"X-Correlation-Id": msg.ReplyToken,
				},
				Attachments: msg.Attachments,
			})
			if err != nil {
				results[i] = models.DeliveryResult{Recipient: rcpt.Address, Error: err.Error()}
				return
			}
			results[i] = models.DeliveryResult{Recipient: rcpt.Address, ProviderID: providerID}
		}(i, rcpt)
	}
	wg.Wait()
	return results
}

func validateSend(input *SendInput) error {
	if len(input.Recipients) == 0 {
		return validationErrorf("at least one recipient is required")
	}
	if strings.TrimSpace(input.Subject) == "" {
		return validationErrorf("subject is required")
	}
	if strings.TrimSpace(input.Body) == "" && strings.TrimSpace(input.BodyHTML) == "" {
		return validationErrorf("body is required")
	}
	for _, rcpt := range input.Recipients {
		if err := checkmail.ValidateFormat(rcpt.Address); err != nil {
			return validationErrorf("invalid recipient address %q", rcpt.Address)
		}
	}
	return nil
}
