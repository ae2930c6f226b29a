package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"messaging-service/internal/models"
)

type readKey struct {
	chatID int64
	userID int64
}

// MemoryStore keeps chats, messages and read state in process memory. Every
// operation holds one mutex, so id assignment and the max-upserts are atomic.
type MemoryStore struct {
	mu sync.Mutex

	now func() time.Time

	nextChatID    int64
	nextMessageID int64

	chats    map[int64]models.Chat
	messages []models.Message // ascending by id
	byID     map[int64]int    // message id -> index in messages
	pointers map[readKey]int64
	markers  map[readKey]int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		chats:    make(map[int64]models.Chat),
		byID:     make(map[int64]int),
		pointers: make(map[readKey]int64),
		markers:  make(map[readKey]int64),
	}
}

// CreateOrGetChat implements ChatRepository.
func (s *MemoryStore) CreateOrGetChat(_ context.Context, userA int64, userB int64) (models.Chat, bool, error) {
	if userA == userB {
		return models.Chat{}, false, ErrSameParticipant
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chat := range s.chats {
		if chat.HasParticipant(userA) && chat.HasParticipant(userB) {
			return chat, false, nil
		}
	}
	s.nextChatID++
	now := s.now().UTC()
	chat := models.Chat{
		ID:             s.nextChatID,
		ParticipantA:   userA,
		ParticipantB:   userB,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.chats[chat.ID] = chat
	return chat, true, nil
}

// GetChat implements ChatRepository.
func (s *MemoryStore) GetChat(_ context.Context, chatID int64) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// ListChatsForUser implements ChatRepository.
func (s *MemoryStore) ListChatsForUser(_ context.Context, userID int64) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chat
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			out = append(out, chat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// AppendMessage implements MessageRepository.
func (s *MemoryStore) AppendMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return models.Message{}, ErrChatNotFound
	}

	s.nextMessageID++
	msg.ID = s.nextMessageID
	msg.Hidden = false
	msg.CreatedAt = s.now().UTC()
	s.byID[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)

	chat.LastActivityAt = msg.CreatedAt
	s.chats[chat.ID] = chat
	return msg, nil
}

// GetMessage implements MessageRepository.
func (s *MemoryStore) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return s.messages[idx], nil
}

// HideMessage implements MessageRepository.
func (s *MemoryStore) HideMessage(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	s.messages[idx].Hidden = true
	return nil
}

// ListVisibleMessages implements MessageRepository.
func (s *MemoryStore) ListVisibleMessages(_ context.Context, chatID int64, boundary int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID && m.VisibleAfter(boundary) {
			out = append(out, m)
		}
	}
	return out, nil
}

// LastVisibleMessage implements MessageRepository.
func (s *MemoryStore) LastVisibleMessage(_ context.Context, chatID int64, boundary int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.ChatID == chatID && m.VisibleAfter(boundary) {
			return &m, nil
		}
	}
	return nil, nil
}

// LatestMessageID implements MessageRepository.
func (s *MemoryStore) LatestMessageID(_ context.Context, chatID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(chatID), nil
}

func (s *MemoryStore) latestLocked(chatID int64) int64 {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ChatID == chatID {
			return s.messages[i].ID
		}
	}
	return 0
}

// CountUnread implements MessageRepository.
func (s *MemoryStore) CountUnread(_ context.Context, chatID int64, viewerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := readKey{chatID: chatID, userID: viewerID}
	floor := s.markers[key]
	if p := s.pointers[key]; p > floor {
		floor = p
	}
	count := 0
	for _, m := range s.messages {
		if m.ChatID == chatID && m.ReceiverID == viewerID && m.SenderID != viewerID && m.VisibleAfter(floor) {
			count++
		}
	}
	return count, nil
}

// AdvanceReadPointer implements ReadPointerRepository.
func (s *MemoryStore) AdvanceReadPointer(_ context.Context, chatID int64, userID int64, upTo int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := readKey{chatID: chatID, userID: userID}
	if upTo > s.pointers[key] {
		s.pointers[key] = upTo
	}
	return s.pointers[key], nil
}

// GetReadPointer implements ReadPointerRepository.
func (s *MemoryStore) GetReadPointer(_ context.Context, chatID int64, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointers[readKey{chatID: chatID, userID: userID}], nil
}

// ClearToLatest implements ClearMarkerRepository.
func (s *MemoryStore) ClearToLatest(_ context.Context, chatID int64, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := readKey{chatID: chatID, userID: userID}
	if latest := s.latestLocked(chatID); latest > s.markers[key] {
		s.markers[key] = latest
	}
	return s.markers[key], nil
}

// GetClearMarker implements ClearMarkerRepository.
func (s *MemoryStore) GetClearMarker(_ context.Context, chatID int64, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[readKey{chatID: chatID, userID: userID}], nil
}

var (
	_ ChatRepository        = (*MemoryStore)(nil)
	_ MessageRepository     = (*MemoryStore)(nil)
	_ ReadPointerRepository = (*MemoryStore)(nil)
	_ ClearMarkerRepository = (*MemoryStore)(nil)
	_ ChatRepository        = (*ChatRepo)(nil)
	_ MessageRepository     = (*MessageRepo)(nil)
	_ ReadPointerRepository = (*ReadStateRepo)(nil)
	_ ClearMarkerRepository = (*ReadStateRepo)(nil)
)
