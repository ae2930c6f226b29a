package services

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// memberChat loads a chat and checks that userID belongs to it.
func memberChat(ctx context.Context, chats repositories.ChatRepository, chatID int64, userID int64) (models.Chat, error) {
	chat, err := chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, storeErr(err)
	}
	if !chat.HasParticipant(userID) {
		return models.Chat{}, ErrNotAMember
	}
	return chat, nil
}
