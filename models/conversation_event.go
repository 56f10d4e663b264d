package models

import "time"

/************************************************
/**** MARK: CONVERSATION EVENT TYPES ****/
/************************************************/
const (
	CONV_EVENT_CREATED             = "CREATED"
	CONV_EVENT_REOPENED            = "REOPENED"
	CONV_EVENT_ACCEPTED            = "ACCEPTED"
	CONV_EVENT_RELEASED            = "RELEASED"
	CONV_EVENT_COMPLETED           = "COMPLETED"
	CONV_EVENT_AGENT_DISCONNECTED  = "AGENT_DISCONNECTED"
	CONV_EVENT_MESSAGE_RECEIVED    = "MESSAGE_RECEIVED"
	CONV_EVENT_MESSAGE_SENT        = "MESSAGE_SENT"
	CONV_EVENT_MESSAGE_DELIVERED   = "MESSAGE_DELIVERED"
	CONV_EVENT_MESSAGE_READ        = "MESSAGE_READ"
	CONV_EVENT_MESSAGE_FAILED      = "MESSAGE_FAILED"
	CONV_EVENT_READ_WATERMARK      = "READ_WATERMARK"
)

// ConversationEvent is the append-only audit trail owned exclusively by
// its Conversation. Never updated or deleted once written.
type ConversationEvent struct {
	ID             string     `gorm:"type:varchar(36);primary_key" json:"id"`
	ConversationID string     `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	EventType      string     `gorm:"not null" json:"event_type"`
	ActorID        *string    `gorm:"type:varchar(36);column:actor_id" json:"actor_id,omitempty"`
	Metadata       string     `gorm:"type:text;default:'{}'" json:"metadata"`
	CreatedAt      *time.Time `json:"created_at"`
}

func (ConversationEvent) TableName() string {
	return "conversation_events"
}
