package services

import (
	"errors"
	"fmt"

	"messaging-service/internal/repositories"
)

var (
	ErrNotEligible        = errors.New("participants may not converse yet")
	ErrNotAMember         = errors.New("not a chat member")
	ErrInvalidParticipant = errors.New("caller is not a participant of this engagement")
	ErrNotFound           = errors.New("not found")
	ErrEmptyPayload       = errors.New("message needs text, media or thumbnail")
	ErrSelfChat           = errors.New("cannot chat with yourself")
	ErrTransientStore     = errors.New("store temporarily unavailable")
	ErrCollaborator       = errors.New("collaborator unavailable")
)

// storeErr translates repository errors into the service taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrChatNotFound):
		return fmt.Errorf("chat %w", ErrNotFound)
	case errors.Is(err, repositories.ErrMessageNotFound):
		return fmt.Errorf("message %w", ErrNotFound)
	case errors.Is(err, repositories.ErrSameParticipant):
		return ErrSelfChat
	case errors.Is(err, repositories.ErrTransient):
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	return err
}
