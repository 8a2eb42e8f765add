package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-server/internal/models"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store used by tests and local development.
// Error fields, when set, are returned by the corresponding method so
// failure paths can be exercised.
type MockStore struct {
	mu            sync.Mutex
	nextUserID    int
	users         map[int]*models.User
	friends       map[[2]int]string // [from, to] -> status
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message

	CreateMessageErr error
	MarkReadErr      error
}

func NewMockStore() *MockStore {
	return &MockStore{
		nextUserID:    1,
		users:         make(map[int]*models.User),
		friends:       make(map[[2]int]string),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

func (s *MockStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, ErrUserExists
		}
	}
	user := &models.User{ID: s.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[user.ID] = user
	s.nextUserID++
	copied := *user
	return &copied, nil
}

func (s *MockStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MockStore) UserByID(ctx context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MockStore) Users(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MockStore) CreateFriendRequest(ctx context.Context, fromID, toID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{fromID, toID}
	if _, ok := s.friends[key]; !ok {
		s.friends[key] = models.FriendPending
	}
	return nil
}

func (s *MockStore) AcceptFriendRequest(ctx context.Context, userID, fromID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{fromID, userID}
	if s.friends[key] != models.FriendPending {
		return ErrNotFound
	}
	s.friends[key] = models.FriendAccepted
	return nil
}

func (s *MockStore) Friends(ctx context.Context, userID int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for key, status := range s.friends {
		if status != models.FriendAccepted {
			continue
		}
		var other int
		switch userID {
		case key[0]:
			other = key[1]
		case key[1]:
			other = key[0]
		default:
			continue
		}
		if u, ok := s.users[other]; ok {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MockStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	copied := *conv
	copied.Participants = append([]int(nil), conv.Participants...)
	copied.Admins = append([]int(nil), conv.Admins...)
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *MockStore) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	copied.Participants = append([]int(nil), conv.Participants...)
	copied.Admins = append([]int(nil), conv.Admins...)
	return &copied, nil
}

func (s *MockStore) ConversationsByParticipant(ctx context.Context, userID int) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var convs []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			copied := *conv
			copied.Participants = append([]int(nil), conv.Participants...)
			convs = append(convs, copied)
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (s *MockStore) PrivateConversationBetween(ctx context.Context, userID1, userID2 int) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.Type == models.ConversationPrivate && conv.HasParticipant(userID1) && conv.HasParticipant(userID2) {
			copied := *conv
			copied.Participants = append([]int(nil), conv.Participants...)
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MockStore) RemoveParticipant(ctx context.Context, convID string, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	for i, p := range conv.Participants {
		if p == userID {
			conv.Participants = append(conv.Participants[:i], conv.Participants[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MockStore) SetConversationIcon(ctx context.Context, convID, icon string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	conv.Icon = icon
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MockStore) SetConversationLastMessage(ctx context.Context, convID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessageID = messageID
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MockStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateMessageErr != nil {
		return s.CreateMessageErr
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	copied := *msg
	s.messages[msg.ID] = &copied
	return nil
}

func (s *MockStore) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *MockStore) MessagesByConversation(ctx context.Context, convID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == convID {
			messages = append(messages, *msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	return messages, nil
}

func (s *MockStore) MarkMessagesRead(ctx context.Context, convID string, ackerID int, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkReadErr != nil {
		return nil, s.MarkReadErr
	}
	eligible := func(msg *models.Message) bool {
		return msg.ConversationID == convID && msg.SenderID != ackerID && msg.Status != models.StatusRead
	}
	var updated []string
	if len(ids) > 0 {
		for _, id := range ids {
			if msg, ok := s.messages[id]; ok && eligible(msg) {
				msg.Status = models.StatusRead
				updated = append(updated, id)
			}
		}
		return updated, nil
	}
	for id, msg := range s.messages {
		if eligible(msg) {
			msg.Status = models.StatusRead
			updated = append(updated, id)
		}
	}
	sort.Strings(updated)
	return updated, nil
}

func (s *MockStore) SetMessageStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Status = status
	return nil
}

func (s *MockStore) SoftDeleteMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	msg.Content = "This message was deleted"
	msg.Media = ""
	msg.Type = models.MessageText
	msg.Deleted = true
	copied := *msg
	return &copied, nil
}

func (s *MockStore) UnreadCount(ctx context.Context, convID string, userID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, msg := range s.messages {
		if msg.ConversationID == convID && msg.SenderID != userID && msg.Status != models.StatusRead {
			count++
		}
	}
	return count, nil
}
