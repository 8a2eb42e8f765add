package models

import "time"

// Message types, derived from the attached media's MIME kind at send time.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
	MessageAudio = "audio"
	MessageFile  = "file"
)

// Message status. The sender creates a message in StatusSent; any other
// participant may advance it. Direct sent -> read transitions are allowed,
// delivered is an optional intermediate.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation"`
	SenderID       int       `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	Media          string    `json:"media,omitempty"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Deleted        bool      `json:"deleted,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Conversation string `json:"conversation"`
	Content      string `json:"content"`
	Media        string `json:"media"`
	MediaType    string `json:"media_type"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}
