package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// Message lifecycle statuses. Terminal once sent or failed.
const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// SenderIdentity is the outbound sending persona for an account. Created
// lazily on first send and reused afterwards; at most one default per
// account, enforced by the unique index on the derived address.
type SenderIdentity struct {
	gorm.Model
	AccountID uint `gorm:"not null;index" json:"account_id"`

	Address     string `gorm:"not null;uniqueIndex" json:"address"`
	DisplayName string `gorm:"not null" json:"display_name"`
	RoleTag     string `json:"role_tag"`
	IsDefault   bool   `gorm:"default:true" json:"is_default"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
}

// Recipient is one structured entry of a message's recipient list.
type Recipient struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// RecipientList is stored as a JSON column.
type RecipientList []Recipient

func (r RecipientList) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RecipientList) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// DeliveryResult records the outcome of one per-recipient provider call.
type DeliveryResult struct {
	Recipient  string `json:"recipient"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DeliveryResultList is stored as a JSON column.
type DeliveryResultList []DeliveryResult

func (d DeliveryResultList) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DeliveryResultList) Scan(value interface{}) error {
	return scanJSON(value, d)
}

// StringList is stored as a JSON column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// EmailMessage is a sent message or an inbound thread root. The thread key
// groups all messages and replies of one conversation; the reply token is
// unique per send and embedded in the reply-routing address.
type EmailMessage struct {
	gorm.Model
	AccountID  uint `gorm:"not null;index" json:"account_id"`
	IdentityID uint `gorm:"not null;index" json:"identity_id"`

	Subject  string `gorm:"not null" json:"subject"`
	Body     string `gorm:"type:text" json:"body"`
	BodyHTML string `gorm:"type:text" json:"body_html,omitempty"`

	Recipients      RecipientList      `gorm:"type:jsonb" json:"recipients"`
	Attachments     StringList         `gorm:"type:jsonb" json:"attachments,omitempty"`
	DeliveryResults DeliveryResultList `gorm:"type:jsonb" json:"delivery_results,omitempty"`

	Status      string `gorm:"not null;default:'pending';index" json:"status"` // pending, sent, failed
	ErrorDetail string `gorm:"type:text" json:"error_detail,omitempty"`

	ThreadKey      string `gorm:"not null;index" json:"thread_key"`
	ReplyToken     string `gorm:"not null;uniqueIndex" json:"reply_token"`
	ReplyToAddress string `gorm:"index" json:"reply_to_address,omitempty"`
	MessageID      string `gorm:"index" json:"message_id,omitempty"` // generated RFC message-id header
	ProviderID     string `gorm:"index" json:"provider_id,omitempty"`

	IsInbound   bool   `gorm:"default:false;index" json:"is_inbound"`
	FromAddress string `json:"from_address,omitempty"` // sender of an inbound root
	FromName    string `json:"from_name,omitempty"`
	IsRead      bool   `gorm:"default:false" json:"is_read"`

	IsKYC     bool  `gorm:"default:false;index" json:"is_kyc"`
	ContactID *uint `gorm:"index" json:"contact_id,omitempty"`

	// Relations
	Identity SenderIdentity `json:"identity,omitempty"`
	Replies  []EmailReply   `gorm:"foreignKey:MessageID" json:"replies,omitempty"`
}

// EmailReply is an inbound continuation of an existing message. Immutable
// once created. The header echoes are kept for audit only; matching is
// settled before the row is written.
type EmailReply struct {
	gorm.Model
	MessageID uint   `gorm:"not null;index" json:"message_id"`
	ThreadKey string `gorm:"not null;index" json:"thread_key"`

	FromAddress string `gorm:"not null" json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	Subject     string `json:"subject"`
	Body        string `gorm:"type:text" json:"body"`
	BodyHTML    string `gorm:"type:text" json:"body_html,omitempty"`

	InReplyTo  string `json:"in_reply_to,omitempty"`
	References string `json:"references,omitempty"`
	IsRead     bool   `gorm:"default:false" json:"is_read"`
}
