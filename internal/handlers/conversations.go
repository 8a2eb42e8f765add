package handlers

import (
	"errors"

	"chat-server/internal/models"
	"chat-server/internal/store"
	"chat-server/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// RecentConversationsHandler lists the caller's conversations, newest
// activity first, with last message, unread count, and the other side's
// online status for private chats.
func RecentConversationsHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		convs, err := st.ConversationsByParticipant(c.Context(), userID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to fetch conversations"})
		}

		summaries := make([]models.ConversationSummary, 0, len(convs))
		for _, conv := range convs {
			summary := models.ConversationSummary{Conversation: conv}

			if conv.LastMessageID != "" {
				if msg, err := st.MessageByID(c.Context(), conv.LastMessageID); err == nil {
					summary.LastMessage = msg
				} else {
					utils.LogError(err, "MessageByID")
				}
			}

			unread, err := st.UnreadCount(c.Context(), conv.ID, userID)
			if err != nil {
				utils.LogError(err, "UnreadCount")
			}
			summary.Unread = unread

			if conv.Type == models.ConversationPrivate {
				for _, p := range conv.Participants {
					if p != userID {
						summary.OtherUserID = p
						summary.OtherOnline = hub.IsOnline(p)
					}
				}
			}
			summaries = append(summaries, summary)
		}

		return c.JSON(summaries)
	}
}

// CreatePrivateHandler finds or creates a one-on-one conversation. When a
// new one is created, a reachable peer is subscribed to its group right
// away so it receives events without reconnecting.
func CreatePrivateHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		var req models.CreatePrivateRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.ParticipantID == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "participant_id required"})
		}

		if conv, err := st.PrivateConversationBetween(c.Context(), userID, req.ParticipantID); err == nil {
			return c.JSON(conv)
		}

		conv := &models.Conversation{
			Type:         models.ConversationPrivate,
			Participants: []int{userID, req.ParticipantID},
		}
		if err := st.CreateConversation(c.Context(), conv); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		hub.SubscribeUser(userID, conv.ID)
		hub.SubscribeUser(req.ParticipantID, conv.ID)

		return c.Status(201).JSON(conv)
	}
}

// CreateGroupHandler creates a group conversation. Every currently
// reachable invited member is subscribed to the new group synchronously
// with the creation and pushed an added-to-group event so clients can
// render it without a refetch.
func CreateGroupHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		var req models.CreateGroupRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Name == "" || len(req.MemberIDs) == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "name and member_ids required"})
		}

		conv := &models.Conversation{
			Type:         models.ConversationGroup,
			Name:         req.Name,
			Icon:         req.Icon,
			Participants: append([]int{userID}, req.MemberIDs...),
			Admins:       []int{userID},
		}
		if err := st.CreateConversation(c.Context(), conv); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		hub.SubscribeUser(userID, conv.ID)
		for _, memberID := range req.MemberIDs {
			if hub.SubscribeUser(memberID, conv.ID) {
				hub.SendToUser(memberID, models.Event{
					Event: models.EventAddedToGroup,
					Group: conv,
				})
			}
		}

		return c.Status(201).JSON(conv)
	}
}

// LeaveGroupHandler removes the caller from a group and notifies the rest.
func LeaveGroupHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		convID := c.Params("id")

		conv, err := st.ConversationByID(c.Context(), convID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if conv.Type != models.ConversationGroup {
			return c.Status(400).JSON(fiber.Map{"error": "not a group conversation"})
		}
		if !conv.HasParticipant(userID) {
			return c.Status(400).JSON(fiber.Map{"error": "not a participant"})
		}

		if err := st.RemoveParticipant(c.Context(), convID, userID); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		if s, ok := hub.Lookup(userID); ok {
			hub.Unsubscribe(s, convID)
		}
		hub.Broadcast(convID, models.Event{
			Event:        models.EventMemberLeft,
			Conversation: convID,
			UserID:       userID,
		}, "")

		return c.JSON(fiber.Map{"conversation": convID})
	}
}

// UpdateIconHandler sets a group's icon reference and broadcasts the change.
// The icon itself lives with the external media collaborator; only the
// reference string passes through here.
func UpdateIconHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		convID := c.Params("id")

		var req models.UpdateIconRequest
		if err := c.BodyParser(&req); err != nil || req.Icon == "" {
			return c.Status(400).JSON(fiber.Map{"error": "icon required"})
		}

		conv, err := st.ConversationByID(c.Context(), convID)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
		}
		if conv.Type != models.ConversationGroup {
			return c.Status(400).JSON(fiber.Map{"error": "not a group conversation"})
		}

		if err := st.SetConversationIcon(c.Context(), convID, req.Icon); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		hub.Broadcast(convID, models.Event{
			Event:        models.EventIconUpdated,
			Conversation: convID,
			Icon:         req.Icon,
		}, "")

		return c.JSON(fiber.Map{"conversation": convID, "icon": req.Icon})
	}
}
