package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userA int64, userB int64) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
}

const chatColumns = `id, participant_a, participant_b, created_at, last_activity_at`

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetChat returns the chat of the unordered pair, creating it with
// (userA, userB) as the stored order when absent. The bool reports creation.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userA int64, userB int64) (models.Chat, bool, error) {
	if userA == userB {
		return models.Chat{}, false, ErrSameParticipant
	}

	chat, err := r.findByPair(ctx, userA, userB)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return models.Chat{}, false, err
	}

	err = r.db.GetContext(ctx, &chat, `INSERT INTO chats (participant_a, participant_b) VALUES ($1, $2)
        ON CONFLICT DO NOTHING RETURNING `+chatColumns, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		// a concurrent creator won the unique index
		chat, err = r.findByPair(ctx, userA, userB)
		return chat, false, err
	}
	if err != nil {
		return models.Chat{}, false, classify(err)
	}
	return chat, true, nil
}

func (r *ChatRepo) findByPair(ctx context.Context, userA int64, userB int64) (models.Chat, error) {
	var chat models.Chat
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats
        WHERE (participant_a=$1 AND participant_b=$2) OR (participant_a=$2 AND participant_b=$1)`, userA, userB)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChatsForUser returns the user's chats, most recently active first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	var chats []models.Chat
	err := withRetry(ctx, func() error {
		chats = chats[:0]
		return r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE participant_a=$1 OR participant_b=$1
        ORDER BY last_activity_at DESC, id DESC`, userID)
	})
	return chats, err
}
