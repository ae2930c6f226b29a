package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"messaging-service/internal/models"
	"messaging-service/internal/notify"
	"messaging-service/internal/observability"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
)

var (
	// ErrIdentityMismatch is returned when an event names a user other than the
	// connection's authenticated identity.
	ErrIdentityMismatch = errors.New("event identity does not match connection")
	ErrMissingData      = errors.New("missing event data")
	ErrMalformedData    = errors.New("malformed event data")
	ErrUnknownEvent     = errors.New("unknown event type")
)

// clientErrors are safe to show as they are. Anything else is reported as
// an internal error.
var clientErrors = []error{
	services.ErrNotEligible,
	services.ErrNotAMember,
	services.ErrInvalidParticipant,
	services.ErrNotFound,
	services.ErrEmptyPayload,
	services.ErrSelfChat,
	ErrIdentityMismatch,
	ErrMissingData,
	ErrMalformedData,
	ErrUnknownEvent,
}

// DefaultOpTimeout bounds a store operation started by a live event.
const DefaultOpTimeout = 10 * time.Second

// Dispatcher turns live events and HTTP calls into store operations and fans
// the results out to rooms, presence and the offline notifier.
type Dispatcher struct {
	hub           *Hub
	conversations *services.Conversations
	messages      *services.Messages
	reads         *services.ReadTracker
	notifier      notify.Notifier
	audit         *telemetry.AuditEmitter
	logger        *zap.Logger
	opTimeout     time.Duration
}

// NewDispatcher wires the fan-out layer.
func NewDispatcher(
	hub *Hub,
	conversations *services.Conversations,
	messages *services.Messages,
	reads *services.ReadTracker,
	notifier notify.Notifier,
	audit *telemetry.AuditEmitter,
	logger *zap.Logger,
) *Dispatcher {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Dispatcher{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		reads:         reads,
		notifier:      notifier,
		audit:         audit,
		logger:        logger,
		opTimeout:     DefaultOpTimeout,
	}
}

// Hub exposes the presence registry.
func (d *Dispatcher) Hub() *Hub { return d.hub }

// detach keeps ctx values (trace, request id) but drops its cancellation so
// a client going away never aborts a store operation halfway.
func (d *Dispatcher) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.opTimeout)
}

// OnLogin registers conn as the identity's live connection and joins it to
// every chat the identity participates in. It returns the number of rooms joined.
func (d *Dispatcher) OnLogin(ctx context.Context, conn Conn) (int, error) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	chatIDs, err := d.conversations.ChatIDs(ctx, conn.UserID())
	d.hub.Login(conn, chatIDs)
	if err != nil {
		return 0, err
	}
	if err := d.notifier.Forget(ctx, conn.UserID()); err != nil {
		d.logger.Warn("clear offline queue failed", zap.Int64("user_id", conn.UserID()), zap.Error(err))
	}
	return len(chatIDs), nil
}

// OnDisconnect drops conn from presence and rooms.
func (d *Dispatcher) OnDisconnect(conn Conn) {
	d.hub.Unregister(conn)
}

// JoinChat subscribes the online participants of a chat to its room.
func (d *Dispatcher) JoinChat(chat models.Chat) {
	d.hub.JoinUser(chat.ID, chat.ParticipantA)
	d.hub.JoinUser(chat.ID, chat.ParticipantB)
}

// OnSend appends a message and fans it out: message-created to the room,
// notification to an online receiver or the offline notifier otherwise, and
// message-sent to origin when the send came from a live connection.
func (d *Dispatcher) OnSend(ctx context.Context, chatID int64, senderID int64, payload models.Payload, origin Conn) (models.Message, error) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	msg, err := d.messages.Append(ctx, chatID, senderID, payload)
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessageAppended()

	data := models.MessageEventData{Message: msg}
	d.hub.Broadcast(chatID, models.ChatEvent{Type: models.EventMessageCreated, Data: data})

	if d.hub.Online(msg.ReceiverID) {
		d.hub.SendTo(msg.ReceiverID, models.ChatEvent{Type: models.EventNotification, Data: data})
	} else if err := d.notifier.NotifyOffline(ctx, msg); err != nil {
		observability.IncOfflineNotification("failed")
		d.logger.Warn("offline notification failed",
			zap.Int64("message_id", msg.ID),
			zap.Int64("receiver_id", msg.ReceiverID),
			zap.Error(err))
	} else {
		observability.IncOfflineNotification("queued")
	}

	if origin != nil {
		sent := origin.Send(models.ChatEvent{Type: models.EventMessageSent, Data: data})
		observability.ObserveDelivery(models.EventMessageSent, sent)
	}

	d.publish(ctx, observability.RoutingMessageCreated, "message_created", msg)
	return msg, nil
}

// OnReadAdvance moves the viewer's read pointer and tells the room.
func (d *Dispatcher) OnReadAdvance(ctx context.Context, chatID int64, viewerID int64, upToMessageID int64) (int64, error) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	pointer, err := d.reads.MarkRead(ctx, chatID, viewerID, upToMessageID)
	if err != nil {
		return 0, err
	}
	d.AnnounceRead(ctx, chatID, viewerID, pointer)
	return pointer, nil
}

// AnnounceRead broadcasts a read-advanced event for a pointer that already moved.
func (d *Dispatcher) AnnounceRead(ctx context.Context, chatID int64, viewerID int64, pointer int64) {
	data := models.ReadAdvancedData{ChatID: chatID, ViewerID: viewerID, UpToMessageID: pointer}
	d.hub.Broadcast(chatID, models.ChatEvent{Type: models.EventReadAdvanced, Data: data})
	d.publish(ctx, observability.RoutingReadAdvanced, "read_advanced", data)
}

// OnRequestHide hides a message for everyone and tells the room.
func (d *Dispatcher) OnRequestHide(ctx context.Context, messageID int64, requesterID int64) (models.Message, error) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	msg, err := d.messages.Hide(ctx, messageID, requesterID)
	if err != nil {
		return models.Message{}, err
	}
	data := models.MessageHiddenData{ChatID: msg.ChatID, MessageID: msg.ID}
	d.hub.Broadcast(msg.ChatID, models.ChatEvent{Type: models.EventMessageHidden, Data: data})
	d.publish(ctx, observability.RoutingMessageHidden, "message_hidden", data)
	d.audit.Emit(ctx, "INFO", fmt.Sprintf("message %d hidden in chat %d", msg.ID, msg.ChatID), requestIDFrom(ctx), &requesterID)
	return msg, nil
}

// Handle dispatches one frame from conn. Failures go back to conn only.
func (d *Dispatcher) Handle(conn Conn, envelope models.ClientEnvelope) {
	observability.IncWSEvent(envelope.Type)
	ctx := withRequestID(context.Background(), conn)

	var err error
	switch envelope.Type {
	case models.EventLogin:
		var data models.LoginData
		if err = decode(envelope.Data, &data); err == nil {
			if err = checkIdentity(conn, &data.Identity); err == nil {
				_, err = d.OnLogin(ctx, conn)
			}
		}
	case models.EventSendMessage:
		var data models.SendMessageData
		if err = decode(envelope.Data, &data); err == nil {
			if err = checkIdentity(conn, &data.SenderID); err == nil {
				_, err = d.OnSend(ctx, data.ChatID, data.SenderID, data.Payload(), conn)
			}
		}
	case models.EventMessageRead:
		var data models.MessageReadData
		if err = decode(envelope.Data, &data); err == nil {
			if err = checkIdentity(conn, &data.ViewerID); err == nil {
				_, err = d.OnReadAdvance(ctx, data.ChatID, data.ViewerID, data.UpToMessageID)
			}
		}
	case models.EventRequestHideMessage:
		var data models.HideMessageData
		if err = decode(envelope.Data, &data); err == nil {
			if err = checkIdentity(conn, &data.RequesterID); err == nil {
				_, err = d.OnRequestHide(ctx, data.MessageID, data.RequesterID)
			}
		}
	default:
		err = fmt.Errorf("%w %q", ErrUnknownEvent, envelope.Type)
	}

	if err != nil {
		d.logger.Debug("live event rejected",
			zap.String("conn_id", conn.ID()),
			zap.String("event", envelope.Type),
			zap.Error(err))
		sent := conn.Send(errorEvent(err))
		observability.ObserveDelivery(models.EventError, sent)
	}
}

func errorEvent(err error) models.ChatEvent {
	return models.ChatEvent{Type: models.EventError, Data: models.ErrorData{Reason: ErrorReason(err)}}
}

// ErrorReason renders an error for a client without leaking store internals.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, services.ErrTransientStore):
		return services.ErrTransientStore.Error()
	case errors.Is(err, services.ErrCollaborator):
		return services.ErrCollaborator.Error()
	}
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "internal error"
}

func (d *Dispatcher) publish(ctx context.Context, routingKey, name string, payload interface{}) {
	headers := observability.BuildHeaders(requestIDFrom(ctx), observability.TraceID(ctx))
	if err := observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, headers); err != nil {
		d.logger.Warn("publish domain event failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return ErrMissingData
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrMalformedData
	}
	return nil
}

// checkIdentity fills an omitted id with the connection's identity and rejects
// any other value.
func checkIdentity(conn Conn, id *int64) error {
	if *id == 0 {
		*id = conn.UserID()
		return nil
	}
	if *id != conn.UserID() {
		return ErrIdentityMismatch
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches a request id used in event headers and audit records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(ctx context.Context, conn Conn) context.Context {
	if c, ok := conn.(*Client); ok && c.info.RequestID != "" {
		return WithRequestID(ctx, c.info.RequestID)
	}
	return WithRequestID(ctx, "ws-"+conn.ID()+"-"+strconv.FormatInt(time.Now().UnixNano(), 36))
}
