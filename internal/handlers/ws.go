package handlers

import (
	"context"
	"log"

	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WebSocketHandler serves one live connection. Identity was resolved by
// AuthMiddleware before the upgrade, so registration and room subscription
// happen before the first event is read: a message broadcast to any of the
// user's groups from here on reaches this connection.
func WebSocketHandler(h *EventHandler) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(int)
		username := c.Locals("username").(string)

		s := NewSession(uuid.New().String(), userID, username, c)
		h.connect(s)
		defer h.disconnect(s)

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("error: %v", err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			h.Handle(s, msg)
		}
	})
}

// connect registers the session, evicting any previous connection for the
// same user with an explicit notice, subscribes it to all of the user's
// conversation groups, and announces arrival to users sharing one of them.
func (h *EventHandler) connect(s *Session) {
	if old := h.hub.Register(s); old != nil {
		_ = old.Send(models.Event{Event: models.EventSessionReplaced})
		_ = old.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	convs, err := h.store.ConversationsByParticipant(ctx, s.UserID)
	cancel()
	if err != nil {
		utils.LogError(err, "ConversationsByParticipant")
	} else {
		ids := make([]string, len(convs))
		for i, conv := range convs {
			ids[i] = conv.ID
		}
		h.hub.Subscribe(s, ids...)
	}

	for _, peer := range h.hub.Peers(s) {
		_ = peer.Send(models.Event{Event: models.EventUserConnected, UserID: s.UserID})
	}

	_ = s.Send(models.Event{Event: models.EventConnected})
	_ = s.Send(models.Event{Event: models.EventOnlineUsers, Users: h.hub.OnlineUserIDs()})
}

// disconnect is the transport-loss handler: tear down any in-progress call,
// drop the registry entry and all group subscriptions, and announce
// departure to users who shared a group.
func (h *EventHandler) disconnect(s *Session) {
	userID, peers, ok := h.hub.Unregister(s)
	if ok {
		// Only the user's current session tears the call down; an evicted
		// connection unwinding late must not end its replacement's call.
		h.calls.HandleDisconnect(userID)
		for _, peer := range peers {
			_ = peer.Send(models.Event{Event: models.EventUserDisconnected, UserID: userID})
		}
	}
	_ = s.Close()
}

// WSUpgradeMiddleware rejects plain HTTP requests on the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT before the request proceeds. The token
// comes from the `access_token` query param or the Authorization header.
func AuthMiddleware(c *fiber.Ctx) error {
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	// claims["user_id"] comes as float64 from JSON
	uid, ok := claims["user_id"].(float64)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	c.Locals("user_id", int(uid))

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}
