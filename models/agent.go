package models

import "time"

/************************************************
/**** MARK: AGENT ROLE ****/
/************************************************/
const (
	AGENT_ROLE_AGENT = "agent"
	AGENT_ROLE_ADMIN = "admin"
)

// Agent is the authenticated identity a Conversation is dispatched to.
// Full user/organization CRUD (profile fields, invites, password reset)
// is an external collaborator out of scope for this repository; Agent
// here carries only the fields the dispatch pipeline itself reads.
type Agent struct {
	ID             string     `gorm:"type:varchar(36);primary_key" json:"id"`
	OrganizationID string     `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Name           string     `gorm:"not null" json:"name"`
	Email          string     `gorm:"not null;unique_index" json:"email"`
	Role           string     `gorm:"not null;default:'agent'" json:"role"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

func (a Agent) IsAdmin() bool {
	return a.Role == AGENT_ROLE_ADMIN
}
