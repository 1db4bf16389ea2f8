package models

import (
	"time"
)

// RecipientType identifies what a message is addressed to
type RecipientType string

const (
	RecipientTypeGroup RecipientType = "group"
)

const (
	// MaxSubjectLength bounds Message.Subject
	MaxSubjectLength = 60
	// DefaultSubject is stored when a message is sent without a subject
	DefaultSubject = "(no topic)"
)

// Message is a message addressed to a recipient. ID is the global ordering key:
// it comes from an AUTOINCREMENT column, so it strictly increases in creation
// order across every recipient and is never reused after deletes.
type Message struct {
	ID              uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	SenderID        uint          `gorm:"not null;index" json:"sender_id"`
	RecipientType   RecipientType `gorm:"type:varchar(20);not null;default:'group'" json:"recipient_type"`
	RecipientID     uint          `gorm:"not null;index" json:"recipient_id"`
	Subject         string        `gorm:"size:60" json:"subject"`
	RawContent      string        `gorm:"type:text;not null" json:"raw_content"`
	RenderedContent string        `gorm:"type:text;not null" json:"rendered_content"`

	// Relationships
	Sender User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
