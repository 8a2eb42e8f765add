package models

import "encoding/json"

// Client -> server events.
const (
	EventSendMessage  = "send-message"
	EventMarkRead     = "mark-read"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
	EventPresence     = "presence"
	EventCallInitiate = "call-initiate"
	EventCallAccept   = "call-accept"
	EventCallReject   = "call-reject"
	EventICECandidate = "ice-candidate" // relayed in both directions
	EventCallHangUp   = "call-hangup"   // relayed in both directions
)

// Server -> client events.
const (
	EventConnected        = "connected"
	EventSessionReplaced  = "session-replaced"
	EventOnlineUsers      = "online-users"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventMessageReceived  = "message-received"
	EventMessageUpdated   = "message-updated"
	EventMessagesRead     = "messages-read"
	EventStatusUpdated    = "status-updated"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventCallIncoming     = "call-incoming"
	EventCallAccepted     = "call-accepted"
	EventCallRejected     = "call-rejected"
	EventCallTimeout      = "call-timeout"
	EventAddedToGroup     = "added-to-group"
	EventMemberLeft       = "member-left"
	EventIconUpdated      = "group-icon-updated"
	EventError            = "error"
)

// Event is the single wire envelope exchanged over the websocket. Fields are
// populated per event name; everything unused is omitted. SDP offers/answers
// and ICE candidates are opaque blobs, forwarded verbatim.
type Event struct {
	Event        string          `json:"event"`
	Conversation string          `json:"conversation,omitempty"`
	Content      string          `json:"content,omitempty"`
	Media        string          `json:"media,omitempty"`
	MediaType    string          `json:"media_type,omitempty"`
	MessageIDs   []string        `json:"message_ids,omitempty"`
	Status       string          `json:"status,omitempty"`
	Message      *Message        `json:"message,omitempty"`
	Group        *Conversation   `json:"group,omitempty"`
	Icon         string          `json:"icon,omitempty"`
	UserID       int             `json:"user_id,omitempty"`
	Users        []int           `json:"users,omitempty"`
	To           int             `json:"to,omitempty"`
	From         int             `json:"from,omitempty"`
	FromName     string          `json:"from_name,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	IsAudioOnly  bool            `json:"is_audio_only,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
}
