package models

import "time"

/************************************************
/**** MARK: CONVERSATION STATUS ****/
/************************************************/
const (
	CONVERSATION_STATUS_PENDING   = "pending"
	CONVERSATION_STATUS_ASSIGNED  = "assigned"
	CONVERSATION_STATUS_COMPLETED = "completed"
)

// Conversation is a stateful thread between one Contact and the
// Organization, dispatched to at most one agent at a time. See
// conversation.Service for the state machine transitions.
type Conversation struct {
	ID              string     `gorm:"type:varchar(36);primary_key" json:"id"`
	OrganizationID  string     `gorm:"type:varchar(36);not null;index:idx_conv_org_status" json:"organization_id"`
	ChannelID       string     `gorm:"type:varchar(36);not null;index" json:"channel_id"`
	ContactID       string     `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	Status          string     `gorm:"not null;default:'pending';index:idx_conv_org_status" json:"status"`
	AssignedAgentID *string    `gorm:"type:varchar(36);column:assigned_agent_id;index" json:"assigned_agent_id"`
	LastMessageAt   *time.Time `gorm:"column:last_message_at" json:"last_message_at"`
	FirstResponseAt *time.Time `gorm:"column:first_response_at" json:"first_response_at"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c Conversation) IsOpen() bool {
	return c.Status == CONVERSATION_STATUS_PENDING || c.Status == CONVERSATION_STATUS_ASSIGNED
}

// ConversationWithRelations is the read shape callers need for
// list/detail endpoints, per spec.md §9's "replace eager-loaded graphs
// with explicit query results" note. controllers.hydrateConversation
// fills it with one query per relation, not a single join.
type ConversationWithRelations struct {
	Conversation  Conversation `json:"conversation"`
	Contact       Contact      `json:"contact"`
	Channel       Channel      `json:"channel"`
	AssignedAgent *Agent       `json:"assigned_agent,omitempty"`
}
