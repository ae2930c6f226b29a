package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Engagement is the workflow collaborator's answer for a conversation key.
type Engagement struct {
	ClientID      int64
	InterpreterID int64
	Eligible      bool
}

// Includes reports whether userID is one of the engagement's two parties.
func (e Engagement) Includes(userID int64) bool {
	return userID != 0 && (e.ClientID == userID || e.InterpreterID == userID)
}

// WorkflowClient resolves a conversation key into its two parties and whether
// they may converse.
type WorkflowClient interface {
	ResolveConversation(ctx context.Context, callerID int64, conversationKey int64) (Engagement, error)
}

// DirectWorkflow treats the conversation key as the counterpart's user id and
// allows every pair. It stands in for the workflow service in local setups.
type DirectWorkflow struct{}

// ResolveConversation implements WorkflowClient.
func (DirectWorkflow) ResolveConversation(_ context.Context, callerID int64, conversationKey int64) (Engagement, error) {
	return Engagement{ClientID: callerID, InterpreterID: conversationKey, Eligible: true}, nil
}

// summaryConcurrency bounds parallel store round-trips while building a conversation list.
const summaryConcurrency = 8

// Conversations creates chats and lists them for a viewer.
type Conversations struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	markers  repositories.ClearMarkerRepository
	workflow WorkflowClient
}

// NewConversations constructs the conversation manager.
func NewConversations(chats repositories.ChatRepository, messages repositories.MessageRepository, markers repositories.ClearMarkerRepository, workflow WorkflowClient) *Conversations {
	return &Conversations{chats: chats, messages: messages, markers: markers, workflow: workflow}
}

// CreateOrGetChat returns the chat between the two parties behind
// conversationKey, creating it on first use. Repeated calls return the same
// chat and have no side effects. The bool reports whether the chat was created.
func (s *Conversations) CreateOrGetChat(ctx context.Context, callerID int64, conversationKey int64) (models.Chat, bool, error) {
	engagement, err := s.workflow.ResolveConversation(ctx, callerID, conversationKey)
	if err != nil {
		return models.Chat{}, false, fmt.Errorf("%w: resolve conversation: %v", ErrCollaborator, err)
	}
	if !engagement.Eligible {
		return models.Chat{}, false, ErrNotEligible
	}
	if !engagement.Includes(callerID) {
		return models.Chat{}, false, ErrInvalidParticipant
	}
	if engagement.ClientID == engagement.InterpreterID {
		return models.Chat{}, false, ErrSelfChat
	}

	chat, created, err := s.chats.CreateOrGetChat(ctx, engagement.ClientID, engagement.InterpreterID)
	if err != nil {
		return models.Chat{}, false, storeErr(err)
	}
	return chat, created, nil
}

// ChatIDs lists the ids of every chat the user participates in.
func (s *Conversations) ChatIDs(ctx context.Context, userID int64) ([]int64, error) {
	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	ids := make([]int64, 0, len(chats))
	for _, chat := range chats {
		ids = append(ids, chat.ID)
	}
	return ids, nil
}

// ListConversations returns one summary per chat of the viewer, most recently
// active first.
func (s *Conversations) ListConversations(ctx context.Context, viewerID int64) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListChatsForUser(ctx, viewerID)
	if err != nil {
		return nil, storeErr(err)
	}

	summaries := make([]models.ChatSummary, len(chats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, chat := range chats {
		i, chat := i, chat
		g.Go(func() error {
			summary, err := s.summarize(gctx, chat, viewerID)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr(err)
	}
	return summaries, nil
}

func (s *Conversations) summarize(ctx context.Context, chat models.Chat, viewerID int64) (models.ChatSummary, error) {
	boundary, err := s.markers.GetClearMarker(ctx, chat.ID, viewerID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	last, err := s.messages.LastVisibleMessage(ctx, chat.ID, boundary)
	if err != nil {
		return models.ChatSummary{}, err
	}
	unread, err := s.messages.CountUnread(ctx, chat.ID, viewerID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	return models.ChatSummary{
		ChatID:             chat.ID,
		CounterpartID:      chat.Counterpart(viewerID),
		LastVisibleMessage: last,
		UnreadCount:        unread,
		LastActivityAt:     chat.LastActivityAt,
	}, nil
}
