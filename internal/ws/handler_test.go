package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/notify"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startWSServer(t *testing.T) (*httptest.Server, *auth.JWTValidator, *services.Conversations, *Dispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repositories.NewMemoryStore()
	reads := services.NewReadTracker(store, store, store)
	conversations := services.NewConversations(store, store, store, services.DirectWorkflow{})
	dispatcher := NewDispatcher(NewHub(zap.NewNop()), conversations, services.NewMessages(store, store), reads, notify.Noop{}, nil, zap.NewNop())
	validator := auth.NewJWTValidator("test-secret")

	r := gin.New()
	r.GET("/ws", NewWebSocketHandler(dispatcher, validator, zap.NewNop()).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		dispatcher.Hub().Stop()
		srv.Close()
	})
	return srv, validator, conversations, dispatcher
}

func dial(t *testing.T, srv *httptest.Server, validator *auth.JWTValidator, userID int64) *websocket.Conn {
	t.Helper()
	token, err := validator.IssueToken(userID, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func waitOnline(t *testing.T, d *Dispatcher, userIDs ...int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, id := range userIDs {
			if !d.Hub().Online(id) {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsMissingOrBadToken(t *testing.T) {
	srv, _, _, _ := startWSServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSendRoundTrip(t *testing.T) {
	srv, validator, conversations, dispatcher := startWSServer(t)
	chat, _, err := conversations.CreateOrGetChat(context.Background(), 1, 2)
	require.NoError(t, err)

	alice := dial(t, srv, validator, 1)
	bob := dial(t, srv, validator, 2)
	waitOnline(t, dispatcher, 1, 2)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{
		"type": models.EventSendMessage,
		"data": map[string]interface{}{"chat_id": chat.ID, "text": "hello bob"},
	}))

	created := readEvent(t, alice)
	assert.Equal(t, models.EventMessageCreated, created.Type)
	assert.Equal(t, models.EventMessageSent, readEvent(t, alice).Type)

	bobCreated := readEvent(t, bob)
	assert.Equal(t, models.EventMessageCreated, bobCreated.Type)
	var data models.MessageEventData
	require.NoError(t, json.Unmarshal(bobCreated.Data, &data))
	require.NotNil(t, data.Message.Text)
	assert.Equal(t, "hello bob", *data.Message.Text)
	assert.Equal(t, int64(1), data.Message.SenderID)
	assert.Equal(t, models.EventNotification, readEvent(t, bob).Type)
}

func TestWebSocketMalformedFrameGetsError(t *testing.T) {
	srv, validator, _, dispatcher := startWSServer(t)
	alice := dial(t, srv, validator, 1)
	waitOnline(t, dispatcher, 1)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))

	ev := readEvent(t, alice)
	assert.Equal(t, models.EventError, ev.Type)
	assert.JSONEq(t, `{"reason":"malformed frame"}`, string(ev.Data))
}

func TestWebSocketDisconnectDropsPresence(t *testing.T) {
	srv, validator, _, dispatcher := startWSServer(t)
	alice := dial(t, srv, validator, 1)
	waitOnline(t, dispatcher, 1)

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !dispatcher.Hub().Online(1) }, 3*time.Second, 10*time.Millisecond)
}
