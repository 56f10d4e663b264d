package models

import "time"

// Contact is an external end-user identified by the provider's own
// addressing identifier (a phone number for channel-A, a PSID for
// channel-B). (OrganizationID, Provider, ProviderID) is unique.
type Contact struct {
	ID             string     `gorm:"type:varchar(36);primary_key" json:"id"`
	OrganizationID string     `gorm:"type:varchar(36);not null;unique_index:idx_contact_org_provider" json:"organization_id"`
	Provider       string     `gorm:"not null;unique_index:idx_contact_org_provider" json:"provider"`
	ProviderID     string     `gorm:"column:provider_id;not null;unique_index:idx_contact_org_provider" json:"provider_id"`
	DisplayName    string     `gorm:"column:display_name" json:"display_name"`
	Metadata       string     `gorm:"type:text;default:'{}'" json:"metadata"`
	LastSeenAt     *time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}
