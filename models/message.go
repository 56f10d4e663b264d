package models

import (
	"fmt"
	"time"
)

/************************************************
/**** MARK: MESSAGE DIRECTION ****/
/************************************************/
const (
	MESSAGE_DIRECTION_INBOUND  = "inbound"
	MESSAGE_DIRECTION_OUTBOUND = "outbound"
)

/************************************************
/**** MARK: MESSAGE STATUS ****/
/************************************************/
const (
	MESSAGE_STATUS_PENDING   = "pending"
	MESSAGE_STATUS_SENT      = "sent"
	MESSAGE_STATUS_DELIVERED = "delivered"
	MESSAGE_STATUS_READ      = "read"
	MESSAGE_STATUS_FAILED    = "failed"
)

// messageStatusRank orders the forward-only path PENDING->SENT->
// DELIVERED->READ; FAILED is absorbing and reachable from any of the
// three non-terminal states but never left.
var messageStatusRank = map[string]int{
	MESSAGE_STATUS_PENDING:   0,
	MESSAGE_STATUS_SENT:      1,
	MESSAGE_STATUS_DELIVERED: 2,
	MESSAGE_STATUS_READ:      3,
}

// Message is owned exclusively by its Conversation. ProviderMessageID is
// the idempotency key for inbound dedup and outbound status callbacks;
// it is globally unique when set.
type Message struct {
	ID                string     `gorm:"type:varchar(36);primary_key" json:"id"`
	ConversationID    string     `gorm:"type:varchar(36);not null;index:idx_msg_conv_created" json:"conversation_id"`
	Direction         string     `gorm:"not null" json:"direction"`
	AgentID           *string    `gorm:"type:varchar(36);column:agent_id" json:"agent_id,omitempty"`
	Body              *string    `gorm:"type:text" json:"body,omitempty"`
	MediaRef          *string    `gorm:"type:text;column:media_ref" json:"media_ref,omitempty"`
	MediaType         *string    `gorm:"column:media_type" json:"media_type,omitempty"`
	ProviderMessageID *string    `gorm:"column:provider_message_id;unique_index" json:"provider_message_id,omitempty"`
	Status            string     `gorm:"not null" json:"status"`
	ErrorCode         *string    `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage      *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	RawPayload        *string    `gorm:"type:text;column:raw_payload" json:"-"`
	CreatedAt         *time.Time `gorm:"index:idx_msg_conv_created" json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// ApplyStatus validates a status transition per spec.md §4.4: only
// monotone forward transitions along PENDING->SENT->DELIVERED->READ are
// accepted, plus a FAILED transition from any non-terminal state. A
// regressive or no-op transition is reported as an error so callers can
// drop the late callback rather than persist it.
func (m *Message) ApplyStatus(next string) error {
	if next == MESSAGE_STATUS_FAILED {
		if m.Status == MESSAGE_STATUS_READ || m.Status == MESSAGE_STATUS_FAILED {
			return fmt.Errorf("message %s: cannot transition %s -> %s", m.ID, m.Status, next)
		}
		m.Status = MESSAGE_STATUS_FAILED
		return nil
	}

	currentRank, ok := messageStatusRank[m.Status]
	if !ok {
		return fmt.Errorf("message %s: unknown current status %q", m.ID, m.Status)
	}
	nextRank, ok := messageStatusRank[next]
	if !ok {
		return fmt.Errorf("message %s: unknown target status %q", m.ID, next)
	}
	if nextRank <= currentRank {
		return fmt.Errorf("message %s: cannot transition %s -> %s", m.ID, m.Status, next)
	}

	m.Status = next
	return nil
}
