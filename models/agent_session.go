package models

import "time"

/************************************************
/**** MARK: AGENT SESSION STATUS ****/
/************************************************/
const (
	AGENT_SESSION_STATUS_ONLINE  = "online"
	AGENT_SESSION_STATUS_AWAY    = "away"
	AGENT_SESSION_STATUS_OFFLINE = "offline"
)

// AgentSession is owned by the process instance that accepted the
// socket; ConnectionID is unique per live session. When the owning
// instance vanishes, the Coordination Store TTL expires the mirrored
// session blob, but nothing updates these rows: Status keeps its last
// value and LastSeenAt stops advancing.
type AgentSession struct {
	ID           string     `gorm:"type:varchar(36);primary_key" json:"id"`
	AgentID      string     `gorm:"type:varchar(36);not null;index" json:"agent_id"`
	ConnectionID string     `gorm:"column:connection_id;not null;unique_index" json:"connection_id"`
	Status       string     `gorm:"not null;default:'online'" json:"status"`
	LastSeenAt   *time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

func (AgentSession) TableName() string {
	return "agent_sessions"
}
