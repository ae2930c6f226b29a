package services

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Messages is the append-only message store.
type Messages struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
}

// NewMessages constructs the message store service.
func NewMessages(chats repositories.ChatRepository, messages repositories.MessageRepository) *Messages {
	return &Messages{chats: chats, messages: messages}
}

// Append persists a message from senderID. The receiver is the other participant.
func (s *Messages) Append(ctx context.Context, chatID int64, senderID int64, payload models.Payload) (models.Message, error) {
	chat, err := memberChat(ctx, s.chats, chatID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if payload.Empty() {
		return models.Message{}, ErrEmptyPayload
	}

	msg := models.Message{
		ChatID:     chat.ID,
		SenderID:   senderID,
		ReceiverID: chat.Counterpart(senderID),
	}
	payload.Apply(&msg)

	stored, err := s.messages.AppendMessage(ctx, msg)
	if err != nil {
		return models.Message{}, storeErr(err)
	}
	return stored, nil
}

// Hide sets the message's global hidden flag. Either participant may hide any
// message of their chat; there is no way back.
func (s *Messages) Hide(ctx context.Context, messageID int64, requesterID int64) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, storeErr(err)
	}
	if _, err := memberChat(ctx, s.chats, msg.ChatID, requesterID); err != nil {
		return models.Message{}, err
	}
	if err := s.messages.HideMessage(ctx, messageID); err != nil {
		return models.Message{}, storeErr(err)
	}
	msg.Hidden = true
	return msg, nil
}
