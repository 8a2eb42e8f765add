package handlers

import (
	"errors"

	"chat-server/internal/models"
	"chat-server/internal/store"

	"github.com/gofiber/fiber/v2"
)

// SendMessageHTTPHandler is the HTTP send path; it reuses the same
// persist-then-broadcast core as the websocket send-message event.
func SendMessageHTTPHandler(h *EventHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		username, _ := c.Locals("username").(string)

		var req models.SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Conversation == "" {
			return c.Status(400).JSON(fiber.Map{"error": "conversation required"})
		}

		msg, err := h.SendMessage(c.Context(), userID, username, req.Conversation, req.Content, req.Media, req.MediaType)
		if err != nil {
			if errors.Is(err, ErrEmptyMessage) {
				return c.Status(400).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		return c.Status(201).JSON(msg)
	}
}

// MessagesHandler returns a conversation's history, oldest first.
func MessagesHandler(st store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messages, err := st.MessagesByConversation(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if messages == nil {
			messages = []models.Message{}
		}
		return c.JSON(messages)
	}
}

// UpdateStatusHandler advances a single message's status. Only delivered
// and read are accepted, only for messages the caller did not send, and the
// change is echoed to the conversation group.
func UpdateStatusHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		msgID := c.Params("id")

		var req models.UpdateStatusRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Status != models.StatusDelivered && req.Status != models.StatusRead {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid status value"})
		}

		msg, err := st.MessageByID(c.Context(), msgID)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "message not found"})
		}
		if msg.SenderID == userID {
			return c.Status(403).JSON(fiber.Map{"error": "cannot update own message status"})
		}

		if err := st.SetMessageStatus(c.Context(), msgID, req.Status); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		hub.Broadcast(msg.ConversationID, models.Event{
			Event:        models.EventStatusUpdated,
			Conversation: msg.ConversationID,
			MessageIDs:   []string{msgID},
			Status:       req.Status,
		}, "")

		return c.JSON(fiber.Map{"message": msgID, "status": req.Status})
	}
}

// DeleteMessageHandler soft-deletes a message for everyone. Sender only;
// the tombstoned message is broadcast so clients replace it in place.
func DeleteMessageHandler(st store.Store, hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		msgID := c.Params("id")

		msg, err := st.MessageByID(c.Context(), msgID)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "message not found"})
		}
		if msg.SenderID != userID {
			return c.Status(403).JSON(fiber.Map{"error": "Unauthorized"})
		}

		deleted, err := st.SoftDeleteMessage(c.Context(), msgID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		hub.Broadcast(deleted.ConversationID, models.Event{
			Event:        models.EventMessageUpdated,
			Conversation: deleted.ConversationID,
			Message:      deleted,
		}, "")

		return c.JSON(deleted)
	}
}
