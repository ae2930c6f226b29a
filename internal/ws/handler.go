package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// WebSocketHandler authenticates and upgrades live connections.
type WebSocketHandler struct {
	dispatcher *Dispatcher
	validator  middleware.TokenValidator
	logger     *zap.Logger
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(dispatcher *Dispatcher, validator middleware.TokenValidator, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{dispatcher: dispatcher, validator: validator, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, logs the identity in and starts the pumps.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      uuid.New().String(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, h.logger)

	// The handshake span ends with this request; the session outlives it.
	session := WithRequestID(context.WithoutCancel(ctx), info.RequestID)
	rooms, err := h.dispatcher.OnLogin(session, client)
	if err != nil {
		h.logger.Warn("join rooms on connect failed", zap.Int64("user_id", userID), zap.Error(err))
		client.Send(errorEvent(err))
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishWSEvent(session, info, "ws_connect", "")
	h.logger.Info("websocket connected",
		zap.String("conn_id", info.ConnID),
		zap.Int64("user_id", userID),
		zap.Int("rooms", rooms))

	go client.WritePump()
	go func() {
		reason := client.ReadPump(func(envelope models.ClientEnvelope) {
			h.dispatcher.Handle(client, envelope)
		})

		h.dispatcher.OnDisconnect(client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		if reason != "" && reason != "closed by server" {
			observability.IncWSEvent("ws_error")
			publishWSEvent(session, info, "ws_error", reason)
		}
		publishWSEvent(session, info, "ws_disconnect", reason)
		h.logger.Info("websocket disconnected",
			zap.String("conn_id", info.ConnID),
			zap.Int64("user_id", userID),
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(info.ConnectedAt)))
	}()
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
