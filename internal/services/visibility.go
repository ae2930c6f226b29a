package services

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// VisibleMessages is a viewer's rendering of a chat.
type VisibleMessages struct {
	ChatID          int64            `json:"chat_id"`
	Messages        []models.Message `json:"messages"`
	ReadPointer     int64            `json:"read_pointer"`
	PeerReadPointer int64            `json:"peer_read_pointer"`
	// ReadAdvanced reports whether this fetch moved the viewer's pointer.
	ReadAdvanced bool `json:"-"`
}

// Visibility decides which stored messages a viewer sees.
type Visibility struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	markers  repositories.ClearMarkerRepository
	reads    *ReadTracker
}

// NewVisibility constructs the visibility engine.
func NewVisibility(chats repositories.ChatRepository, messages repositories.MessageRepository, markers repositories.ClearMarkerRepository, reads *ReadTracker) *Visibility {
	return &Visibility{chats: chats, messages: messages, markers: markers, reads: reads}
}

// ListVisible returns the chat's messages above the viewer's clear marker that
// are not hidden, in id order. As a side effect the viewer's read pointer is
// advanced to the last returned message.
func (v *Visibility) ListVisible(ctx context.Context, chatID int64, viewerID int64) (VisibleMessages, error) {
	chat, err := memberChat(ctx, v.chats, chatID, viewerID)
	if err != nil {
		return VisibleMessages{}, err
	}

	boundary, err := v.markers.GetClearMarker(ctx, chatID, viewerID)
	if err != nil {
		return VisibleMessages{}, storeErr(err)
	}
	stored, err := v.messages.ListVisibleMessages(ctx, chatID, boundary)
	if err != nil {
		return VisibleMessages{}, storeErr(err)
	}

	result := VisibleMessages{ChatID: chatID, Messages: make([]models.Message, 0, len(stored))}
	for _, m := range stored {
		if m.VisibleAfter(boundary) {
			result.Messages = append(result.Messages, m)
		}
	}

	before, err := v.reads.Pointer(ctx, chatID, viewerID)
	if err != nil {
		return VisibleMessages{}, err
	}
	result.ReadPointer = before
	if n := len(result.Messages); n > 0 {
		if result.ReadPointer, err = v.reads.advance(ctx, chatID, viewerID, result.Messages[n-1].ID); err != nil {
			return VisibleMessages{}, err
		}
	}
	result.ReadAdvanced = result.ReadPointer > before

	if result.PeerReadPointer, err = v.reads.Pointer(ctx, chatID, chat.Counterpart(viewerID)); err != nil {
		return VisibleMessages{}, err
	}
	return result, nil
}

// Clear hides everything currently in the chat from the viewer and returns the
// new boundary. The boundary never moves backward.
func (v *Visibility) Clear(ctx context.Context, chatID int64, viewerID int64) (int64, error) {
	if _, err := memberChat(ctx, v.chats, chatID, viewerID); err != nil {
		return 0, err
	}
	boundary, err := v.markers.ClearToLatest(ctx, chatID, viewerID)
	if err != nil {
		return 0, storeErr(err)
	}
	return boundary, nil
}
