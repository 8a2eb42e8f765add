package models

import "time"

const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

type Conversation struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name,omitempty"`
	Icon          string    `json:"icon,omitempty"`
	Participants  []int     `json:"participants"`
	Admins        []int     `json:"admins,omitempty"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type CreatePrivateRequest struct {
	ParticipantID int `json:"participant_id"`
}

type CreateGroupRequest struct {
	Name      string `json:"name"`
	MemberIDs []int  `json:"member_ids"`
	Icon      string `json:"icon"`
}

type UpdateIconRequest struct {
	Icon string `json:"icon"`
}

// ConversationSummary is the shape of one entry in the recent-conversations
// list: the conversation plus the data the sidebar needs to render it.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message,omitempty"`
	Unread      int      `json:"unread"`
	OtherUserID int      `json:"other_user_id,omitempty"`
	OtherOnline bool     `json:"other_online,omitempty"`
}
