package store

import (
	"context"
	"errors"
	"time"

	"chat-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var user models.User
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, created_at`
	err := s.pool.QueryRow(ctx, query, username, passwordHash).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}

func (s *Postgres) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, password_hash, avatar, created_at FROM users WHERE username = $1`
	err := s.pool.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Avatar, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Postgres) UserByID(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, password_hash, avatar, created_at FROM users WHERE id = $1`
	err := s.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Avatar, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Postgres) Users(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, username, avatar, created_at FROM users ORDER BY username`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Postgres) CreateFriendRequest(ctx context.Context, fromID, toID int) error {
	query := `INSERT INTO friends (user_id, friend_id, status) VALUES ($1, $2, 'pending') ON CONFLICT DO NOTHING`
	_, err := s.pool.Exec(ctx, query, fromID, toID)
	return err
}

func (s *Postgres) AcceptFriendRequest(ctx context.Context, userID, fromID int) error {
	query := `UPDATE friends SET status = 'accepted' WHERE user_id = $1 AND friend_id = $2 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, query, fromID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Friends(ctx context.Context, userID int) ([]models.User, error) {
	query := `
		SELECT u.id, u.username, u.avatar, u.created_at
		FROM users u
		JOIN friends f ON (f.user_id = u.id AND f.friend_id = $1)
		           OR (f.friend_id = u.id AND f.user_id = $1)
		WHERE f.status = 'accepted'
		ORDER BY u.username
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Postgres) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (id, type, name, icon, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		conv.ID, conv.Type, conv.Name, conv.Icon, now)
	if err != nil {
		return err
	}

	admins := make(map[int]bool, len(conv.Admins))
	for _, a := range conv.Admins {
		admins[a] = true
	}
	for _, p := range conv.Participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, is_admin) VALUES ($1, $2, $3)`,
			conv.ID, p, admins[p])
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Postgres) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT id, type, name, icon, COALESCE(last_message_id, ''), created_at, updated_at FROM conversations WHERE id = $1`
	err := s.pool.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.Type, &conv.Name, &conv.Icon, &conv.LastMessageID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadParticipants(ctx, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Postgres) loadParticipants(ctx context.Context, conv *models.Conversation) error {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, is_admin FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`,
		conv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	conv.Participants = conv.Participants[:0]
	conv.Admins = conv.Admins[:0]
	for rows.Next() {
		var userID int
		var isAdmin bool
		if err := rows.Scan(&userID, &isAdmin); err != nil {
			return err
		}
		conv.Participants = append(conv.Participants, userID)
		if isAdmin {
			conv.Admins = append(conv.Admins, userID)
		}
	}
	return rows.Err()
}

func (s *Postgres) ConversationsByParticipant(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.type, c.name, c.icon, COALESCE(c.last_message_id, ''), c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Type, &conv.Name, &conv.Icon, &conv.LastMessageID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range convs {
		if err := s.loadParticipants(ctx, &convs[i]); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *Postgres) PrivateConversationBetween(ctx context.Context, userID1, userID2 int) (*models.Conversation, error) {
	query := `
		SELECT c.id
		FROM conversations c
		JOIN conversation_participants p1 ON c.id = p1.conversation_id
		JOIN conversation_participants p2 ON c.id = p2.conversation_id
		WHERE c.type = 'private'
		AND p1.user_id = $1
		AND p2.user_id = $2
		LIMIT 1
	`
	var id string
	err := s.pool.QueryRow(ctx, query, userID1, userID2).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.ConversationByID(ctx, id)
}

func (s *Postgres) RemoveParticipant(ctx context.Context, convID string, userID int) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2`,
		convID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SetConversationIcon(ctx context.Context, convID, icon string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET icon = $2, updated_at = now() WHERE id = $1`, convID, icon)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SetConversationLastMessage(ctx context.Context, convID, messageID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2, updated_at = now() WHERE id = $1`, convID, messageID)
	return err
}

func (s *Postgres) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, media, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return s.pool.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Content, msg.Media, msg.Type, msg.Status,
	).Scan(&msg.CreatedAt)
}

func (s *Postgres) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	query := `
		SELECT id, conversation_id, sender_id, sender_name, content, media, type, status, deleted, created_at
		FROM messages WHERE id = $1
	`
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName,
		&msg.Content, &msg.Media, &msg.Type, &msg.Status, &msg.Deleted, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Postgres) MessagesByConversation(ctx context.Context, convID string) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, content, media, type, status, deleted, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName,
			&msg.Content, &msg.Media, &msg.Type, &msg.Status, &msg.Deleted, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Postgres) MarkMessagesRead(ctx context.Context, convID string, ackerID int, ids []string) ([]string, error) {
	query := `
		UPDATE messages SET status = 'read'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'
	`
	args := []interface{}{convID, ackerID}
	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}
	query += ` RETURNING id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}
	return updated, rows.Err()
}

func (s *Postgres) SetMessageStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SoftDeleteMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = 'This message was deleted', media = '', type = 'text', deleted = true
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.MessageByID(ctx, id)
}

func (s *Postgres) UnreadCount(ctx context.Context, convID string, userID int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'`
	err := s.pool.QueryRow(ctx, query, convID, userID).Scan(&count)
	return count, err
}
