package models

import "time"

// PartyView is the display identity of a participant.
type PartyView struct {
	ID          *uint  `json:"id"`
	DisplayName string `json:"display_name"`
	Anonymous   bool   `json:"anonymous"`
}

// Location is a point attached to a message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MessageView is a message decorated for a specific viewer.
type MessageView struct {
	ID             uint        `json:"id"`
	ConversationID uint        `json:"conversation_id"`
	Sender         PartyView   `json:"sender"`
	IsMine         bool        `json:"is_mine"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"kind"`
	AttachmentPath *string     `json:"attachment_path,omitempty"`
	AttachmentURL  string      `json:"attachment_url,omitempty"`
	Location       *Location   `json:"location,omitempty"`
	ReadAt         *time.Time  `json:"read_at"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConversationSummary is one row of a viewer's conversation list.
type ConversationSummary struct {
	ID           uint         `json:"id"`
	Counterparty PartyView    `json:"counterparty"`
	LastMessage  *MessageView `json:"last_message"`
	UnreadCount  int64        `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
