package mail

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailroom/models"
)

// Inbound outcome kinds.
const (
	InboundKindReply     = "reply"
	InboundKindNewThread = "newThread"
)

// InboundResult is the outcome of one reconciliation. Kind is either
// InboundKindReply (Reply set) or InboundKindNewThread (Message set).
type InboundResult struct {
	Kind    string               `json:"kind"`
	Reply   *models.EmailReply   `json:"reply,omitempty"`
	Message *models.EmailMessage `json:"message,omitempty"`
}

// InboundEvent is a provider webhook event. Data is kept loosely typed; the
// payload shape varies by event and is probed defensively.
type InboundEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Reconciler folds asynchronous inbound events (replies, bounces,
// unsolicited mail) back into conversation threads. It runs on the webhook
// boundary: the provider expects an acknowledgment no matter what happens
// internally, so reconciliation absorbs every error and degrades toward the
// unroutable outcome instead of propagating.
type Reconciler struct {
	db            *gorm.DB
	provider      Provider
	rdb           *redis.Client
	sendingDomain string
	enrichTimeout time.Duration
	logger        *logrus.Logger
}

func NewReconciler(db *gorm.DB, provider Provider, rdb *redis.Client, sendingDomain string, enrichTimeout time.Duration, logger *logrus.Logger) *Reconciler {
	if enrichTimeout <= 0 {
		enrichTimeout = 10 * time.Second
	}
	return &Reconciler{
		db:            db,
		provider:      provider,
		rdb:           rdb,
		sendingDomain: sendingDomain,
		enrichTimeout: enrichTimeout,
		logger:        logger,
	}
}

// Reconcile routes one inbound event. It returns the created record, or nil
// when the event is unhandled, a redelivery, or unroutable. It never returns
// an error: failures are logged and reported, then swallowed.
func (r *Reconciler) Reconcile(ctx context.Context, event *InboundEvent) *InboundResult {
	if event == nil || !strings.HasSuffix(event.Type, ".received") {
		return nil
	}

	env := extractEnvelope(event.Data)

	if r.alreadySeen(ctx, event.Type, env.EmailID) {
		r.logger.WithField("email_id", env.EmailID).Info("Duplicate webhook event suppressed")
		return nil
	}

	r.enrich(ctx, env)

	for _, m := range matchers {
		msg, err := m.match(r, env)
		if err != nil {
			r.reportError("matcher_failed", err, logrus.Fields{"matcher": m.name})
			continue
		}
		if msg != nil {
			return r.recordReply(msg, env, m.name)
		}
	}

	return r.recordInboundRoot(env)
}

// enrich fetches text/HTML from the provider side channel when the primary
// payload carried none. One bounded attempt; a failure or timeout degrades
// to placeholder content.
func (r *Reconciler) enrich(ctx context.Context, env *inboundEnvelope) {
	if env.hasContent() || env.EmailID == "" || r.provider == nil {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.enrichTimeout)
	defer cancel()

	content, err := r.provider.FetchInbound(fetchCtx, env.EmailID)
	if err != nil {
		r.reportError("enrichment_failed", err, logrus.Fields{"email_id": env.EmailID})
		return
	}
	env.Text = content.Text
	env.HTML = content.HTML
}

func (r *Reconciler) recordReply(parent *models.EmailMessage, env *inboundEnvelope, matchedBy string) *InboundResult {
	reply := models.EmailReply{
		MessageID:   parent.ID,
		ThreadKey:   parent.ThreadKey,
		FromAddress: env.FromAddress,
		FromName:    env.FromName,
		Subject:     env.Subject,
		Body:        env.bodyText(),
		BodyHTML:    env.HTML,
		InReplyTo:   env.InReplyTo,
		References:  env.References,
	}
	if err := r.db.Create(&reply).Error; err != nil {
		r.reportError("reply_persist_failed", err, logrus.Fields{"parent_id": parent.ID})
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"reply_id":   reply.ID,
		"parent_id":  parent.ID,
		"thread_key": parent.ThreadKey,
		"matched_by": matchedBy,
	}).Info("Inbound reply reconciled")

	return &InboundResult{Kind: InboundKindReply, Reply: &reply}
}

// recordInboundRoot opens a new thread for mail addressed directly to a
// known identity. Anything else is unroutable: logged and discarded so the
// webhook boundary can still acknowledge.
func (r *Reconciler) recordInboundRoot(env *inboundEnvelope) *InboundResult {
	if env.To == "" {
		r.logUnroutable(env)
		return nil
	}

	var identity models.SenderIdentity
	err := r.db.Where("address = ? AND is_active = ?", env.To, true).First(&identity).Error
	if err != nil {
		r.logUnroutable(env)
		return nil
	}

	msg := models.EmailMessage{
		AccountID:   identity.AccountID,
		IdentityID:  identity.ID,
		Subject:     env.Subject,
		Body:        env.bodyText(),
		BodyHTML:    env.HTML,
		Recipients:  models.RecipientList{{Address: identity.Address, Name: identity.DisplayName}},
		Status:      models.MessageStatusSent,
		ThreadKey:   uuid.NewString(),
		ReplyToken:  uuid.NewString(),
		MessageID:   env.MessageID,
		IsInbound:   true,
		FromAddress: env.FromAddress,
		FromName:    env.FromName,
		ContactID:   r.associateContact(env.FromAddress),
	}
	if err := r.db.Create(&msg).Error; err != nil {
		r.reportError("inbound_root_persist_failed", err, logrus.Fields{"to": env.To})
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"thread_key": msg.ThreadKey,
		"from":       env.FromAddress,
	}).Info("Inbound message opened a new thread")

	return &InboundResult{Kind: InboundKindNewThread, Message: &msg}
}

// associateContact links the sender's address to a known business-entity
// record. Best-effort: absence is not an error.
func (r *Reconciler) associateContact(address string) *uint {
	if address == "" {
		return nil
	}
	var contact models.Contact
	if err := r.db.Where("LOWER(email) = ?", strings.ToLower(address)).First(&contact).Error; err != nil {
		return nil
	}
	return &contact.ID
}

// alreadySeen suppresses webhook redeliveries when Redis is configured and
// the event carries an id. Without either, idempotency is only as strong as
// the matching keys in the event.
func (r *Reconciler) alreadySeen(ctx context.Context, eventType, emailID string) bool {
	if r.rdb == nil || emailID == "" {
		return false
	}
	key := "mailroom:webhook:" + eventType + ":" + emailID
	ok, err := r.rdb.SetNX(ctx, key, 1, 24*time.Hour).Result()
	if err != nil {
		// Dedupe is an optimization; a broken Redis must not drop events.
		r.logger.WithError(err).Warn("Webhook dedupe check failed")
		return false
	}
	return !ok
}

func (r *Reconciler) logUnroutable(env *inboundEnvelope) {
	r.logger.WithFields(logrus.Fields{
		"from":        env.FromAddress,
		"to":          env.To,
		"in_reply_to": env.InReplyTo,
	}).Warn("Inbound event unroutable, discarding")
}

func (r *Reconciler) reportError(errorType string, err error, fields logrus.Fields) {
	entry := r.logger.WithFields(fields).WithField("error_type", errorType)
	entry.WithError(err).Error("Reconciliation error absorbed")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
