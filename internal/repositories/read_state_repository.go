package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ReadPointerRepository persists per-viewer read pointers.
type ReadPointerRepository interface {
	AdvanceReadPointer(ctx context.Context, chatID int64, userID int64, upTo int64) (int64, error)
	GetReadPointer(ctx context.Context, chatID int64, userID int64) (int64, error)
}

// ClearMarkerRepository persists per-viewer clear boundaries.
type ClearMarkerRepository interface {
	ClearToLatest(ctx context.Context, chatID int64, userID int64) (int64, error)
	GetClearMarker(ctx context.Context, chatID int64, userID int64) (int64, error)
}

// ReadStateRepo implements both read pointers and clear markers on sqlx.
type ReadStateRepo struct {
	db *sqlx.DB
}

// NewReadStateRepo constructs a ReadStateRepo.
func NewReadStateRepo(db *sqlx.DB) *ReadStateRepo {
	return &ReadStateRepo{db: db}
}

// AdvanceReadPointer moves the pointer to max(existing, upTo) and returns the stored value.
func (r *ReadStateRepo) AdvanceReadPointer(ctx context.Context, chatID int64, userID int64, upTo int64) (int64, error) {
	var pointer int64
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &pointer, `INSERT INTO chat_read_pointers (chat_id, user_id, last_read_message_id, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (chat_id, user_id) DO UPDATE
        SET last_read_message_id = GREATEST(chat_read_pointers.last_read_message_id, EXCLUDED.last_read_message_id),
            updated_at = NOW()
        RETURNING last_read_message_id`, chatID, userID, upTo)
	})
	return pointer, err
}

// GetReadPointer returns the viewer's pointer, 0 when none was stored.
func (r *ReadStateRepo) GetReadPointer(ctx context.Context, chatID int64, userID int64) (int64, error) {
	return r.getValue(ctx, `SELECT last_read_message_id FROM chat_read_pointers WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
}

// ClearToLatest sets the viewer's boundary to the chat's current latest message id.
// Reading the latest id and writing the marker is a single statement, and the
// marker never moves backward.
func (r *ReadStateRepo) ClearToLatest(ctx context.Context, chatID int64, userID int64) (int64, error) {
	var boundary int64
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &boundary, `INSERT INTO chat_clear_markers (chat_id, user_id, boundary_message_id, updated_at)
        SELECT $1, $2, COALESCE(MAX(id), 0), NOW() FROM messages WHERE chat_id=$1
        ON CONFLICT (chat_id, user_id) DO UPDATE
        SET boundary_message_id = GREATEST(chat_clear_markers.boundary_message_id, EXCLUDED.boundary_message_id),
            updated_at = NOW()
        RETURNING boundary_message_id`, chatID, userID)
	})
	return boundary, err
}

// GetClearMarker returns the viewer's boundary, 0 when the chat was never cleared.
func (r *ReadStateRepo) GetClearMarker(ctx context.Context, chatID int64, userID int64) (int64, error) {
	return r.getValue(ctx, `SELECT boundary_message_id FROM chat_clear_markers WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
}

func (r *ReadStateRepo) getValue(ctx context.Context, query string, chatID int64, userID int64) (int64, error) {
	var v int64
	err := withRetry(ctx, func() error {
		return r.db.GetContext(ctx, &v, query, chatID, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
