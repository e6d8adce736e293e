package models

import "gorm.io/gorm"

const (
	MessageText   = "text"
	MessageOffer  = "offer"
	MessageSystem = "system_info"
)

// ChatMessage is a saved message of a negotiation thread.
// The embedded gorm.Model ID is the message identifier offer responses target.
type ChatMessage struct {
	gorm.Model

	ThreadID string `gorm:"type:uuid;not null;index:idx_thread_msg"`
	SenderID string `gorm:"type:text;not null;index:idx_thread_msg"`
	// Type is one of MessageText, MessageOffer, MessageSystem.
	Type    string `gorm:"type:text;not null"`
	Content string `gorm:"type:text"`

	// Offer is meaningful only when Type is MessageOffer.
	Offer Offer `gorm:"embedded"`
}

// IsOffer reports whether the message carries an offer record.
func (m *ChatMessage) IsOffer() bool {
	return m.Type == MessageOffer
}
