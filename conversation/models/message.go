package models

import (
	"time"
)

// MessageKind is the content type of a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindVoice MessageKind = "voice"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindVoice:
		return true
	}
	return false
}

// Message is an append-only entry of a conversation. SenderID is nil when
// the anonymous visitor wrote it. ReadAt only ever moves from nil to a
// timestamp.
type Message struct {
	ID             uint        `json:"id" gorm:"primaryKey"`
	ConversationID uint        `json:"conversation_id" gorm:"not null;index"`
	SenderID       *uint       `json:"sender_id" gorm:"index"`
	Content        string      `json:"content" gorm:"type:text"`
	Kind           MessageKind `json:"kind" gorm:"size:16;not null;default:text"`
	AttachmentPath *string     `json:"attachment_path,omitempty" gorm:"size:512"`
	Latitude       *float64    `json:"latitude,omitempty"`
	Longitude      *float64    `json:"longitude,omitempty"`
	ReadAt         *time.Time  `json:"read_at" gorm:"index"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Author returns the party that wrote the message.
func (m *Message) Author() Party {
	if m.SenderID == nil {
		return AnonymousVisitor{}
	}
	return NamedUser{ID: *m.SenderID}
}

// IsRead reports whether the message has been read by its recipient.
func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// MessageInput is what a caller supplies when appending a message.
type MessageInput struct {
	Content        string
	Kind           MessageKind
	AttachmentPath *string
	Latitude       *float64
	Longitude      *float64
}
