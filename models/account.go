package models

import (
	"gorm.io/gorm"
)

// Account roles
const (
	RoleAgent  = "agent"
	RoleAgency = "agency"
)

// Account represents a platform account on whose behalf mail is sent.
// Account management itself lives in the main application; this engine
// only reads display attributes when materializing a sending identity.
type Account struct {
	gorm.Model
	Email            string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             string `gorm:"default:'agent'" json:"role"` // agent, agency
	OrganizationName string `json:"organization_name"`
	IsActive         bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Identities []SenderIdentity `gorm:"foreignKey:AccountID" json:"identities,omitempty"`
}

// Contact represents a business-entity record (a counterparty we correspond
// with). Inbound mail from a known contact is linked back to it best-effort.
type Contact struct {
	gorm.Model
	Email string `gorm:"not null;index" json:"email"`
	Name  string `json:"name"`
}
