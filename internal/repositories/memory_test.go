package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func appendText(t *testing.T, s *MemoryStore, chat models.Chat, sender int64, text string) models.Message {
	t.Helper()
	msg := models.Message{ChatID: chat.ID, SenderID: sender, ReceiverID: chat.Counterpart(sender)}
	models.Payload{Text: text}.Apply(&msg)
	stored, err := s.AppendMessage(context.Background(), msg)
	require.NoError(t, err)
	return stored
}

func TestMemoryStoreCreateOrGetChatMatchesEitherOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, created, err := s.CreateOrGetChat(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateOrGetChat(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, _, err = s.CreateOrGetChat(ctx, 3, 3)
	assert.ErrorIs(t, err, ErrSameParticipant)
}

func TestMemoryStoreConcurrentAppendsGetDistinctIDs(t *testing.T) {
	s := NewMemoryStore()
	chat, _, err := s.CreateOrGetChat(context.Background(), 1, 2)
	require.NoError(t, err)

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(sender int64) {
			defer wg.Done()
			ids <- appendText(t, s, chat, sender, "x").ID
		}(int64(1 + i%2))
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	msgs, err := s.ListVisibleMessages(context.Background(), chat.ID, 0)
	require.NoError(t, err)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
	}
}

func TestMemoryStoreReadPointerNeverMovesBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, upTo := range []int64{3, 1, 7, 5, 0} {
		_, err := s.AdvanceReadPointer(ctx, 1, 1, upTo)
		require.NoError(t, err)
	}
	pointer, err := s.GetReadPointer(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pointer)
}

func TestMemoryStoreClearAndUnread(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	chat, _, err := s.CreateOrGetChat(ctx, 1, 2)
	require.NoError(t, err)

	boundary, err := s.ClearToLatest(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, boundary)

	m1 := appendText(t, s, chat, 2, "one")
	appendText(t, s, chat, 1, "mine")
	m3 := appendText(t, s, chat, 2, "three")

	count, err := s.CountUnread(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	boundary, err = s.ClearToLatest(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, boundary)

	count, err = s.CountUnread(ctx, chat.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.HideMessage(ctx, m1.ID))
	last, err := s.LastVisibleMessage(ctx, chat.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, m3.ID, last.ID)
	assert.ErrorIs(t, s.HideMessage(ctx, 404), ErrMessageNotFound)
}
