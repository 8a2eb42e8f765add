package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/store"
	"chat-server/internal/utils"
)

// ErrEmptyMessage rejects sends carrying neither text nor a media reference.
var ErrEmptyMessage = errors.New("message must have either content or media")

const storeTimeout = 10 * time.Second

// EventHandler routes inbound websocket events to the presence registry,
// the conversation groups, the call relay, and the repository.
type EventHandler struct {
	hub   *Hub
	calls *CallManager
	store store.Store
}

func NewEventHandler(hub *Hub, calls *CallManager, st store.Store) *EventHandler {
	return &EventHandler{hub: hub, calls: calls, store: st}
}

func (h *EventHandler) Hub() *Hub { return h.hub }

// Handle dispatches one inbound event from s. Malformed events are rejected
// here, before any shared state is touched.
func (h *EventHandler) Handle(s *Session, data []byte) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		utils.LogError(err, "JSON Parse")
		return
	}

	switch ev.Event {
	case models.EventSendMessage:
		h.handleSendMessage(s, &ev)
	case models.EventMarkRead:
		h.handleMarkRead(s, &ev)
	case models.EventTypingStart:
		h.handleTyping(s, &ev, true)
	case models.EventTypingStop:
		h.handleTyping(s, &ev, false)
	case models.EventPresence:
		_ = s.Send(models.Event{Event: models.EventOnlineUsers, Users: h.hub.OnlineUserIDs()})
	case models.EventCallInitiate:
		if ev.To == 0 || len(ev.Offer) == 0 {
			return
		}
		h.calls.Initiate(s, ev.To, ev.Offer, ev.IsAudioOnly)
	case models.EventCallAccept:
		if ev.To == 0 || len(ev.Answer) == 0 {
			return
		}
		h.calls.Accept(s, ev.To, ev.Answer)
	case models.EventCallReject:
		if ev.To == 0 {
			return
		}
		h.calls.Reject(s, ev.To, ev.Reason)
	case models.EventICECandidate:
		if ev.To == 0 || len(ev.Candidate) == 0 {
			return
		}
		h.calls.Candidate(s, ev.To, ev.Candidate)
	case models.EventCallHangUp:
		h.calls.HangUp(s, ev.To)
	default:
		log.Printf("Unknown event: %s", ev.Event)
	}
}

func (h *EventHandler) handleSendMessage(s *Session, ev *models.Event) {
	if ev.Conversation == "" {
		_ = s.Send(models.Event{Event: models.EventError, Error: "conversation required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := h.SendMessage(ctx, s.UserID, s.Username, ev.Conversation, ev.Content, ev.Media, ev.MediaType); err != nil {
		utils.LogError(err, "SendMessage")
		_ = s.Send(models.Event{Event: models.EventError, Error: err.Error()})
	}
}

// SendMessage persists one message and fans it out to the conversation
// group, sender included, so the sending client sees its own message
// confirmed. A persistence failure aborts the whole operation: no broadcast
// is emitted and the error is surfaced to the caller only. This is also the
// core of the HTTP send path.
func (h *EventHandler) SendMessage(ctx context.Context, senderID int, senderName, convID, content, media, mediaType string) (*models.Message, error) {
	if content == "" && media == "" {
		return nil, ErrEmptyMessage
	}

	msg := &models.Message{
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		Media:          media,
		Type:           messageTypeForMedia(media, mediaType),
		Status:         models.StatusSent,
	}

	if err := h.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	// The message is durable at this point; a failed pointer update only
	// costs the recent-list ordering.
	utils.LogError(h.store.SetConversationLastMessage(ctx, convID, msg.ID), "SetConversationLastMessage")

	h.hub.Broadcast(convID, models.Event{
		Event:        models.EventMessageReceived,
		Conversation: convID,
		Message:      msg,
	}, "")

	return msg, nil
}

// messageTypeForMedia derives the message type from the attached media's
// declared MIME kind; text when there is no media at all.
func messageTypeForMedia(media, mediaType string) string {
	if media == "" {
		return models.MessageText
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return models.MessageImage
	case strings.HasPrefix(mediaType, "video/"):
		return models.MessageVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return models.MessageAudio
	default:
		return models.MessageFile
	}
}

// handleMarkRead reconciles read receipts. The acknowledger is always the
// session's user, never the payload. With an explicit id list only those
// ids are updated; without one every message in the conversation not sent
// by the acknowledger and not already read is updated. The broadcast goes
// to the whole group either way — re-acknowledging is a no-op status-wise
// but still broadcasts, so replays are safe.
func (h *EventHandler) handleMarkRead(s *Session, ev *models.Event) {
	if ev.Conversation == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	updated, err := h.store.MarkMessagesRead(ctx, ev.Conversation, s.UserID, ev.MessageIDs)
	if err != nil {
		utils.LogError(err, "MarkMessagesRead")
		_ = s.Send(models.Event{Event: models.EventError, Error: "mark read failed"})
		return
	}

	ids := ev.MessageIDs
	if len(ids) == 0 {
		ids = updated
	}

	h.hub.Broadcast(ev.Conversation, models.Event{
		Event:        models.EventMessagesRead,
		Conversation: ev.Conversation,
		MessageIDs:   ids,
		Status:       models.StatusRead,
	}, "")
}

// handleTyping relays the ephemeral typing flag to the rest of the group.
// Nothing is persisted and no server-side timeout exists: a client that
// never sends the stop is its peers' display problem.
func (h *EventHandler) handleTyping(s *Session, ev *models.Event, start bool) {
	if ev.Conversation == "" {
		return
	}

	name := models.EventTyping
	if start {
		h.hub.StartTyping(ev.Conversation, s.UserID)
	} else {
		h.hub.StopTyping(ev.Conversation, s.UserID)
		name = models.EventStopTyping
	}

	h.hub.Broadcast(ev.Conversation, models.Event{
		Event:        name,
		Conversation: ev.Conversation,
		From:         s.UserID,
		FromName:     s.Username,
	}, s.ID)
}
