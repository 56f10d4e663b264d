// Package eventbus fans real-time events out to connected agent
// consoles (spec.md §4.6). Events are typed structs, not an open map
// — spec.md §9 is explicit that the event payload should be "a tagged
// variant, not an open map" the same way providers.InboundMessage is.
package eventbus

import "time"

const (
	EventConversationNew       = "conversation.new"
	EventConversationUpdated   = "conversation.updated"
	EventConversationAssigned  = "conversation.assigned"
	EventConversationReleased  = "conversation.released"
	EventConversationCompleted = "conversation.completed"
	EventMessageNew            = "message.new"
	EventMessageUpdated        = "message.updated"
	EventAgentStatusChanged    = "agent.status_changed"
	EventAgentTyping           = "agent.typing"
)

// Envelope is the wire shape every event takes once it leaves this
// package: a discriminated Type plus a nested, type-specific Data
// payload. Callers put one of the *Data structs below into Data, and
// it is marshalled together with the envelope.
type Envelope struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type ConversationNewData struct {
	ConversationID string `json:"conversation_id"`
	OrganizationID string `json:"organization_id"`
	ChannelID      string `json:"channel_id"`
	ContactID      string `json:"contact_id"`
	Status         string `json:"status"`
}

type ConversationUpdatedData struct {
	ConversationID string  `json:"conversation_id"`
	Status         string  `json:"status"`
	AssignedAgentID *string `json:"assigned_agent_id,omitempty"`
}

type ConversationAssignedData struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
}

type ConversationReleasedData struct {
	ConversationID string `json:"conversation_id"`
	PreviousAgentID string `json:"previous_agent_id"`
	Reason          string `json:"reason"` // agent_released | agent_disconnected
}

type ConversationCompletedData struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
}

type MessageNewData struct {
	ConversationID string  `json:"conversation_id"`
	MessageID      string  `json:"message_id"`
	Direction      string  `json:"direction"`
	Body           *string `json:"body,omitempty"`
	MediaRef       *string `json:"media_ref,omitempty"`
}

type MessageUpdatedData struct {
	ConversationID string  `json:"conversation_id"`
	MessageID      string  `json:"message_id"`
	Status         string  `json:"status"`
	ErrorCode      *string `json:"error_code,omitempty"`
}

type AgentStatusChangedData struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

type AgentTypingData struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	IsTyping       bool   `json:"is_typing"`
}

// Rooms generates the three room names the Socket Gateway fans events
// into: per-organization, per-agent, and per-conversation.
func OrgRoom(organizationID string) string  { return "org:" + organizationID }
func AgentRoom(agentID string) string       { return "user:" + agentID }
func ConversationRoom(id string) string     { return "conv:" + id }
