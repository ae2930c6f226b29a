package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	conversations *services.Conversations
	visibility    *services.Visibility
	reads         *services.ReadTracker
	dispatcher    *ws.Dispatcher
	audit         *telemetry.AuditEmitter
	logger        *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(
	conversations *services.Conversations,
	visibility *services.Visibility,
	reads *services.ReadTracker,
	dispatcher *ws.Dispatcher,
	audit *telemetry.AuditEmitter,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		visibility:    visibility,
		reads:         reads,
		dispatcher:    dispatcher,
		audit:         audit,
		logger:        logger,
	}
}

// Register wires the chat routes behind auth.
func (h *ChatHandler) Register(router gin.IRouter, auth gin.HandlerFunc) {
	router.GET("/chats", auth, h.ListChats)
	router.POST("/chats/start", auth, h.StartChat)
	router.GET("/chats/:chat_id/messages", auth, h.GetChatMessages)
	router.POST("/chats/:chat_id/messages", auth, h.PostChatMessage)
	router.POST("/chats/:chat_id/read", auth, h.MarkRead)
	router.GET("/chats/:chat_id/unread", auth, h.UnreadCount)
	router.POST("/chats/:chat_id/clear", auth, h.ClearChat)
	router.DELETE("/messages/:message_id", auth, h.HideMessage)
}

func requestContext(c *gin.Context) context.Context {
	return ws.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

// ListChats returns the caller's conversations, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	summaries, err := h.conversations.ListConversations(requestContext(c), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = []models.ChatSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// StartChat creates or returns the chat behind a conversation key.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		AssignmentID int64 `json:"assignment_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := requestContext(c)
	userID := c.GetInt64(middleware.UserIDKey)
	chat, created, err := h.conversations.CreateOrGetChat(ctx, userID, req.AssignmentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if created {
		h.dispatcher.JoinChat(chat)
		headers := observability.BuildHeaders(requestIDFromContext(c), observability.TraceID(ctx))
		if err := observability.PublishEvent(ctx, observability.RoutingChatCreated, observability.EventEnvelope{
			EventType: "chat_events",
			EventName: "chat_created",
			Payload:   chat,
		}, headers); err != nil {
			h.logger.Warn("publish chat_created failed", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID, "created": created, "chat": chat})
}

// GetChatMessages returns the messages visible to the caller and marks them read.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := parseID(c, "chat_id")
	if !ok {
		return
	}

	ctx := requestContext(c)
	userID := c.GetInt64(middleware.UserIDKey)
	view, err := h.visibility.ListVisible(ctx, chatID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if view.ReadAdvanced {
		h.dispatcher.AnnounceRead(ctx, chatID, userID, view.ReadPointer)
	}

	c.JSON(http.StatusOK, view)
}

// PostChatMessage stores a chat message and fans it out.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := parseID(c, "chat_id")
	if !ok {
		return
	}

	var payload models.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	msg, err := h.dispatcher.OnSend(requestContext(c), chatID, userID, payload, nil)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead advances the caller's read pointer.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := parseID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		UpToMessageID int64 `json:"up_to_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	pointer, err := h.dispatcher.OnReadAdvance(requestContext(c), chatID, userID, req.UpToMessageID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "read_pointer": pointer})
}

// UnreadCount reports how many messages addressed to the caller are unread.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	chatID, ok := parseID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	count, err := h.reads.UnreadCount(requestContext(c), chatID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "unread_count": count})
}

// ClearChat hides the current history from the caller only.
func (h *ChatHandler) ClearChat(c *gin.Context) {
	chatID, ok := parseID(c, "chat_id")
	if !ok {
		return
	}

	ctx := requestContext(c)
	userID := c.GetInt64(middleware.UserIDKey)
	boundary, err := h.visibility.Clear(ctx, chatID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	headers := observability.BuildHeaders(requestIDFromContext(c), observability.TraceID(ctx))
	_ = observability.PublishEvent(ctx, observability.RoutingChatCleared, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "chat_cleared",
		Payload:   gin.H{"chat_id": chatID, "user_id": userID, "boundary_message_id": boundary},
	}, headers)
	h.audit.Emit(ctx, "INFO", fmt.Sprintf("chat %d cleared up to message %d", chatID, boundary), requestIDFromContext(c), &userID)

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "boundary_message_id": boundary})
}

// HideMessage hides a message for both participants.
func (h *ChatHandler) HideMessage(c *gin.Context) {
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if _, err := h.dispatcher.OnRequestHide(requestContext(c), messageID, userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}
