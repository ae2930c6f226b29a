package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	HideMessage(ctx context.Context, messageID int64) error
	ListVisibleMessages(ctx context.Context, chatID int64, boundary int64) ([]models.Message, error)
	LastVisibleMessage(ctx context.Context, chatID int64, boundary int64) (*models.Message, error)
	LatestMessageID(ctx context.Context, chatID int64) (int64, error)
	CountUnread(ctx context.Context, chatID int64, viewerID int64) (int, error)
}

const messageColumns = `id, chat_id, sender_id, receiver_id, text, media_ref, thumb_ref, hidden, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message and advances the chat's last activity in one
// transaction. The id comes from the messages sequence. It is never retried.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, classify(err)
	}
	defer tx.Rollback()

	var stored models.Message
	if err := tx.GetContext(ctx, &stored, `INSERT INTO messages (chat_id, sender_id, receiver_id, text, media_ref, thumb_ref)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		msg.ChatID, msg.SenderID, msg.ReceiverID, msg.Text, msg.MediaRef, msg.ThumbRef); err != nil {
		return models.Message{}, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET last_activity_at=$2 WHERE id=$1`, stored.ChatID, stored.CreatedAt); err != nil {
		return models.Message{}, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, classify(err)
	}
	return stored, nil
}

// GetMessage retrieves a single message regardless of its hidden flag.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// HideMessage sets the global hidden flag. Hiding twice is harmless.
func (r *MessageRepo) HideMessage(ctx context.Context, messageID int64) error {
	var count int64
	err := withRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `UPDATE messages SET hidden = TRUE WHERE id=$1`, messageID)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListVisibleMessages returns messages above boundary that are not hidden, ordered by id.
func (r *MessageRepo) ListVisibleMessages(ctx context.Context, chatID int64, boundary int64) ([]models.Message, error) {
	var msgs []models.Message
	err := withRetry(ctx, func() error {
		msgs = msgs[:0]
		return r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND id > $2 AND hidden = FALSE
        ORDER BY id ASC`, chatID, boundary)
	})
	return msgs, err
}

// LastVisibleMessage returns the newest message above boundary that is not hidden, or nil.
func (r *MessageRepo) LastVisibleMessage(ctx context.Context, chatID int64, boundary int64) (*models.Message, error) {
	var msg models.Message
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND id > $2 AND hidden = FALSE
        ORDER BY id DESC LIMIT 1`, chatID, boundary)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// LatestMessageID returns the highest message id of the chat, hidden or not; 0 when empty.
func (r *MessageRepo) LatestMessageID(ctx context.Context, chatID int64) (int64, error) {
	var id int64
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM messages WHERE chat_id=$1`, chatID)
	})
	return id, err
}

// CountUnread counts messages addressed to the viewer above both the clear
// marker and the read pointer.
func (r *MessageRepo) CountUnread(ctx context.Context, chatID int64, viewerID int64) (int, error) {
	var count int
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        WHERE m.chat_id=$1 AND m.receiver_id=$2 AND m.sender_id<>$2 AND m.hidden = FALSE
        AND m.id > COALESCE((SELECT boundary_message_id FROM chat_clear_markers WHERE chat_id=$1 AND user_id=$2), 0)
        AND m.id > COALESCE((SELECT last_read_message_id FROM chat_read_pointers WHERE chat_id=$1 AND user_id=$2), 0)`,
			chatID, viewerID)
	})
	return count, err
}
