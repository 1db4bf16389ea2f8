package models

import (
	"time"
)

const (
	// MaxGroupNameLength bounds Group.Name
	MaxGroupNameLength = 60
	// MaxGroupDescriptionLength bounds Group.Description
	MaxGroupDescriptionLength = 1024
)

// Group is a user-owned conversation space. The owner is always treated as a
// member, without a GroupMembership row of their own.
// Names are unique per owner, not globally.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	OwnerID     uint      `gorm:"not null;uniqueIndex:idx_owner_name" json:"owner_id"`
	Name        string    `gorm:"size:60;not null;uniqueIndex:idx_owner_name" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`

	// Relationships
	Owner    User              `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members  []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Messages []Message         `gorm:"foreignKey:RecipientID" json:"messages,omitempty"`
}
