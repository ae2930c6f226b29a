package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Routing keys for domain and connection events.
const (
	RoutingMessageCreated = "chat_events.message_created"
	RoutingMessageHidden  = "chat_events.message_hidden"
	RoutingReadAdvanced   = "chat_events.read_advanced"
	RoutingChatCleared    = "chat_events.chat_cleared"
	RoutingChatCreated    = "chat_events.chat_created"
	RoutingWSEvents       = "ws_events.chats"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// TraceID returns the id of the span carried by ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
