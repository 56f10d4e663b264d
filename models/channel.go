package models

import "time"

/************************************************
/**** MARK: CHANNEL PROVIDER ****/
/************************************************/
const (
	CHANNEL_PROVIDER_A = "channel_a" // WhatsApp-style provider
	CHANNEL_PROVIDER_B = "channel_b" // Messenger-style provider
)

/************************************************
/**** MARK: CHANNEL STATUS ****/
/************************************************/
const (
	CHANNEL_STATUS_ACTIVE   = "active"
	CHANNEL_STATUS_INACTIVE = "inactive"
	CHANNEL_STATUS_ERROR    = "error"
)

// Channel is a configured connection to one external messaging provider
// (one channel-A number or one channel-B page). Config shape depends on
// the provider: channel-A keys on phoneNumberId, channel-B on pageId.
type Channel struct {
	ID             string     `gorm:"type:varchar(36);primary_key" json:"id"`
	OrganizationID string     `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Provider       string     `gorm:"not null;index" json:"provider"`
	Config         string     `gorm:"type:text;not null;default:'{}'" json:"config"` // JSON blob, see ChannelConfig
	WebhookSecret  string     `gorm:"column:webhook_secret" json:"webhook_secret"` // used by the GET verify handshake
	AppSecret      string     `gorm:"column:app_secret" json:"-"`                  // used to HMAC-verify POST deliveries
	Status         string     `gorm:"not null;default:'active'" json:"status"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// ChannelConfig is the decoded shape of Channel.Config. Only the fields
// relevant to the configured provider are populated; the rest are left
// zero-valued, the same way the teacher kept a single flat config struct
// per tenant in models.WhatsAppConfig instead of a provider union type.
type ChannelConfig struct {
	// channel-A (WhatsApp-style)
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	WabaID        string `json:"waba_id,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	ApiVersion    string `json:"api_version,omitempty"`

	// channel-B (Messenger-style)
	PageID    string `json:"page_id,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

func (c Channel) IsActive() bool {
	return c.Status == CHANNEL_STATUS_ACTIVE
}
