package services

import (
	"context"

	"messaging-service/internal/repositories"
)

// ReadTracker maintains read pointers and derives unread counts.
type ReadTracker struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	pointers repositories.ReadPointerRepository
}

// NewReadTracker constructs a ReadTracker.
func NewReadTracker(chats repositories.ChatRepository, messages repositories.MessageRepository, pointers repositories.ReadPointerRepository) *ReadTracker {
	return &ReadTracker{chats: chats, messages: messages, pointers: pointers}
}

// MarkRead moves the viewer's pointer to max(existing, upToMessageID) and
// returns the stored pointer. upToMessageID is capped at the chat's latest
// message id; a non-positive value leaves the pointer untouched.
func (t *ReadTracker) MarkRead(ctx context.Context, chatID int64, viewerID int64, upToMessageID int64) (int64, error) {
	if _, err := memberChat(ctx, t.chats, chatID, viewerID); err != nil {
		return 0, err
	}
	if upToMessageID <= 0 {
		return t.Pointer(ctx, chatID, viewerID)
	}

	latest, err := t.messages.LatestMessageID(ctx, chatID)
	if err != nil {
		return 0, storeErr(err)
	}
	if upToMessageID > latest {
		upToMessageID = latest
	}
	return t.advance(ctx, chatID, viewerID, upToMessageID)
}

func (t *ReadTracker) advance(ctx context.Context, chatID int64, viewerID int64, upToMessageID int64) (int64, error) {
	pointer, err := t.pointers.AdvanceReadPointer(ctx, chatID, viewerID, upToMessageID)
	if err != nil {
		return 0, storeErr(err)
	}
	return pointer, nil
}

// Pointer returns the user's current read pointer, 0 if none.
func (t *ReadTracker) Pointer(ctx context.Context, chatID int64, userID int64) (int64, error) {
	pointer, err := t.pointers.GetReadPointer(ctx, chatID, userID)
	if err != nil {
		return 0, storeErr(err)
	}
	return pointer, nil
}

// UnreadCount counts visible messages addressed to the viewer above its read pointer.
func (t *ReadTracker) UnreadCount(ctx context.Context, chatID int64, viewerID int64) (int, error) {
	if _, err := memberChat(ctx, t.chats, chatID, viewerID); err != nil {
		return 0, err
	}
	count, err := t.messages.CountUnread(ctx, chatID, viewerID)
	if err != nil {
		return 0, storeErr(err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}
