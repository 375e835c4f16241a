package mail

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"mailroom/models"
)

// Entry direction and kind tags for thread views.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"

	EntryKindSent     = "sent"
	EntryKindReceived = "received"
	EntryKindReply    = "reply"
)

// Projector assembles read views over persisted messages and replies. A
// thread is never stored: it is always recomputed from the rows sharing a
// thread key.
type Projector struct {
	db *gorm.DB
}

func NewProjector(db *gorm.DB) *Projector {
	return &Projector{db: db}
}

// InboxFilter narrows the inbox listing.
type InboxFilter struct {
	IsKYC     *bool
	ContactID *uint
	Status    string
	ThreadKey string
	Page      int
	Limit     int
}

// InboxEntry is one conversation row: the thread's most recent message plus
// the total reply count across the whole thread.
type InboxEntry struct {
	models.EmailMessage
	ReplyCount int64 `json:"reply_count"`
}

// ThreadEntry is one element of a full conversation view.
type ThreadEntry struct {
	ID          uint      `json:"id"`
	Kind        string    `json:"kind"`      // sent, received, reply
	Direction   string    `json:"direction"` // incoming, outgoing
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	BodyHTML    string    `json:"body_html,omitempty"`
	FromAddress string    `json:"from_address,omitempty"`
	FromName    string    `json:"from_name,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListInbox lists the account's conversations, newest first, collapsed to
// one row per thread key (first seen wins under the recency sort).
func (p *Projector) ListInbox(accountID uint, filter *InboxFilter) ([]InboxEntry, int64, error) {
	query := p.db.Model(&models.EmailMessage{}).
		Where("account_id = ?", accountID).
		Preload("Identity")
	if filter.IsKYC != nil {
		query = query.Where("is_kyc = ?", *filter.IsKYC)
	}
	if filter.ContactID != nil {
		query = query.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ThreadKey != "" {
		query = query.Where("thread_key = ?", filter.ThreadKey)
	}

	var messages []models.EmailMessage
	if err := query.Order("created_at DESC, id DESC").Find(&messages).Error; err != nil {
		return nil, 0, err
	}

	counts, err := p.replyCounts(messages)
	if err != nil {
		return nil, 0, err
	}

	seen := map[string]bool{}
	entries := []InboxEntry{}
	for _, msg := range messages {
		if seen[msg.ThreadKey] {
			continue
		}
		seen[msg.ThreadKey] = true
		entries = append(entries, InboxEntry{EmailMessage: msg, ReplyCount: counts[msg.ThreadKey]})
	}

	total := int64(len(entries))
	return paginate(entries, filter.Page, filter.Limit), total, nil
}

// ListSent lists the account's outbound messages, newest first.
func (p *Projector) ListSent(accountID uint, page, limit int) ([]models.EmailMessage, int64, error) {
	query := p.db.Model(&models.EmailMessage{}).
		Where("account_id = ? AND is_inbound = ?", accountID, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.EmailMessage
	offset := (normalizePage(page) - 1) * normalizeLimit(limit)
	if err := query.Preload("Identity").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(normalizeLimit(limit)).
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Replies returns the replies attached to one message, oldest first.
func (p *Projector) Replies(messageID uint) ([]models.EmailReply, error) {
	var replies []models.EmailReply
	err := p.db.Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	return replies, err
}

// ThreadMessages returns the messages of one thread, oldest first.
func (p *Projector) ThreadMessages(threadKey string) ([]models.EmailMessage, error) {
	var messages []models.EmailMessage
	err := p.db.Where("thread_key = ?", threadKey).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// ListThread resolves keyOrID (a thread key, or a root message's own id) to
// the canonical thread key and returns the complete conversation,
// merge-sorted ascending by creation time. Pagination never applies here:
// this is the canonical view and must include every record.
func (p *Projector) ListThread(keyOrID string) ([]ThreadEntry, string, error) {
	threadKey, err := p.resolveThreadKey(keyOrID)
	if err != nil {
		return nil, "", err
	}

	messages, err := p.ThreadMessages(threadKey)
	if err != nil {
		return nil, "", err
	}
	var replies []models.EmailReply
	if err := p.db.Where("thread_key = ?", threadKey).
		Order("created_at ASC, id ASC").
		Find(&replies).Error; err != nil {
		return nil, "", err
	}

	entries := make([]ThreadEntry, 0, len(messages)+len(replies))
	for _, msg := range messages {
		entry := ThreadEntry{
			ID:        msg.ID,
			Kind:      EntryKindSent,
			Direction: DirectionOutgoing,
			Subject:   msg.Subject,
			Body:      msg.Body,
			BodyHTML:  msg.BodyHTML,
			IsRead:    msg.IsRead,
			CreatedAt: msg.CreatedAt,
		}
		if msg.IsInbound {
			entry.Kind = EntryKindReceived
			entry.Direction = DirectionIncoming
			entry.FromAddress = msg.FromAddress
			entry.FromName = msg.FromName
		}
		entries = append(entries, entry)
	}
	for _, reply := range replies {
		entries = append(entries, ThreadEntry{
			ID:          reply.ID,
			Kind:        EntryKindReply,
			Direction:   DirectionIncoming,
			Subject:     reply.Subject,
			Body:        reply.Body,
			BodyHTML:    reply.BodyHTML,
			FromAddress: reply.FromAddress,
			FromName:    reply.FromName,
			IsRead:      reply.IsRead,
			CreatedAt:   reply.CreatedAt,
		})
	}

	// Stable: equal timestamps keep messages ahead of replies.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, threadKey, nil
}

// ErrThreadNotFound is returned when keyOrID resolves to nothing.
var ErrThreadNotFound = errors.New("thread not found")

func (p *Projector) resolveThreadKey(keyOrID string) (string, error) {
	var count int64
	if err := p.db.Model(&models.EmailMessage{}).
		Where("thread_key = ?", keyOrID).
		Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return keyOrID, nil
	}

	if id, err := strconv.ParseUint(keyOrID, 10, 32); err == nil {
		var msg models.EmailMessage
		if err := p.db.First(&msg, uint(id)).Error; err == nil {
			return msg.ThreadKey, nil
		}
	}
	return "", ErrThreadNotFound
}

// MarkThreadRead flags every inbound record of a thread as read. The
// near-real-time push channel polls this state; it lives here because the
// rows do.
func (p *Projector) MarkThreadRead(threadKey string) error {
	if err := p.db.Model(&models.EmailMessage{}).
		Where("thread_key = ? AND is_inbound = ? AND is_read = ?", threadKey, true, false).
		Update("is_read", true).Error; err != nil {
		return err
	}
	return p.db.Model(&models.EmailReply{}).
		Where("thread_key = ? AND is_read = ?", threadKey, false).
		Update("is_read", true).Error
}

func (p *Projector) replyCounts(messages []models.EmailMessage) (map[string]int64, error) {
	counts := map[string]int64{}
	if len(messages) == 0 {
		return counts, nil
	}

	keys := make([]string, 0, len(messages))
	seen := map[string]bool{}
	for _, msg := range messages {
		if !seen[msg.ThreadKey] {
			seen[msg.ThreadKey] = true
			keys = append(keys, msg.ThreadKey)
		}
	}

	var rows []struct {
		ThreadKey string
		Count     int64
	}
	if err := p.db.Model(&models.EmailReply{}).
		Select("thread_key, COUNT(*) as count").
		Where("thread_key IN ?", keys).
		Group("thread_key").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ThreadKey] = row.Count
	}
	return counts, nil
}

func paginate(entries []InboxEntry, page, limit int) []InboxEntry {
	limit = normalizeLimit(limit)
	offset := (normalizePage(page) - 1) * limit
	if offset >= len(entries) {
		return []InboxEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizeLimit(limit int) int {
	if limit < 1 || limit > 100 {
		return 20
	}
	return limit
}
