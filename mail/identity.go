package mail

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"mailroom/models"
)

// ResolveIdentity returns the account's default sending identity, creating
// one lazily on first use. The derived address is the account email's
// local-part on the configured sending domain; the uniqueness constraint on
// the address keeps concurrent first sends from creating two rows.
func (m *Mailer) ResolveIdentity(accountID uint, roleHint string) (*models.SenderIdentity, error) {
	var identity models.SenderIdentity
	err := m.db.Where("account_id = ? AND is_default = ?", accountID, true).First(&identity).Error
	if err == nil {
		return &identity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var account models.Account
	if err := m.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	identity = models.SenderIdentity{
		AccountID:   accountID,
		Address:     m.deriveAddress(account.Email),
		DisplayName: displayNameFor(&account),
		RoleTag:     roleHint,
		IsDefault:   true,
		IsActive:    true,
	}
	if err := m.db.Create(&identity).Error; err != nil {
		// Lost a race on the unique address index; reuse the winner's row.
		var existing models.SenderIdentity
		if lookupErr := m.db.Where("address = ?", identity.Address).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &identity, nil
}

func (m *Mailer) deriveAddress(accountEmail string) string {
	local := accountEmail
	if at := strings.Index(accountEmail, "@"); at >= 0 {
		local = accountEmail[:at]
	}
	return fmt.Sprintf("%s@%s", strings.ToLower(local), m.sendingDomain)
}

func displayNameFor(account *models.Account) string {
	if account.Role == models.RoleAgency && account.OrganizationName != "" {
		return account.OrganizationName
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", account.FirstName, account.LastName))
}
