package models

import "time"

// Organization is the tenant boundary. Every Channel, Contact and
// Conversation is scoped to exactly one Organization.
type Organization struct {
	ID        string     `gorm:"type:varchar(36);primary_key" json:"id"`
	Slug      string     `gorm:"not null;unique_index" json:"slug"`
	Name      string     `gorm:"not null" json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
