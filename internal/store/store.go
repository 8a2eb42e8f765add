package store

import (
	"context"
	"errors"

	"chat-server/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("username already exists")
)

// Store is the repository consumed by the real-time core and the HTTP glue.
// Implemented by Postgres in production and by MockStore in tests.
type Store interface {
	// Users
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id int) (*models.User, error)
	Users(ctx context.Context) ([]models.User, error)

	// Friends
	CreateFriendRequest(ctx context.Context, fromID, toID int) error
	AcceptFriendRequest(ctx context.Context, userID, fromID int) error
	Friends(ctx context.Context, userID int) ([]models.User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ConversationsByParticipant(ctx context.Context, userID int) ([]models.Conversation, error)
	PrivateConversationBetween(ctx context.Context, userID1, userID2 int) (*models.Conversation, error)
	RemoveParticipant(ctx context.Context, convID string, userID int) error
	SetConversationIcon(ctx context.Context, convID, icon string) error
	SetConversationLastMessage(ctx context.Context, convID, messageID string) error

	// Messages
	CreateMessage(ctx context.Context, msg *models.Message) error
	MessageByID(ctx context.Context, id string) (*models.Message, error)
	MessagesByConversation(ctx context.Context, convID string) ([]models.Message, error)
	// MarkMessagesRead sets status=read for messages in convID not sent by
	// ackerID and not already read; when ids is non-empty only those ids are
	// eligible. Returns the ids actually updated.
	MarkMessagesRead(ctx context.Context, convID string, ackerID int, ids []string) ([]string, error)
	SetMessageStatus(ctx context.Context, id, status string) error
	SoftDeleteMessage(ctx context.Context, id string) (*models.Message, error)
	UnreadCount(ctx context.Context, convID string, userID int) (int, error)
}
