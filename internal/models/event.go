package models

import "encoding/json"

// Live transport event types.
const (
	EventLogin              = "login"
	EventSendMessage        = "send-message"
	EventMessageRead        = "message-read"
	EventRequestHideMessage = "request-hide-message"

	EventMessageCreated = "message-created"
	EventMessageSent    = "message-sent"
	EventNotification   = "notification"
	EventReadAdvanced   = "read-advanced"
	EventMessageHidden  = "message-hidden"
	EventError          = "error"
)

// ClientEnvelope is a frame received from a live connection.
type ClientEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LoginData asks the server to join every room of the identity.
type LoginData struct {
	Identity int64 `json:"identity"`
}

// SendMessageData carries a new message from a live connection.
type SendMessageData struct {
	SenderID int64  `json:"sender_id"`
	ChatID   int64  `json:"chat_id"`
	Text     string `json:"text,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
	ThumbRef string `json:"thumb_ref,omitempty"`
}

// Payload extracts the message content.
func (d SendMessageData) Payload() Payload {
	return Payload{Text: d.Text, MediaRef: d.MediaRef, ThumbRef: d.ThumbRef}
}

// MessageReadData advances the viewer's read pointer.
type MessageReadData struct {
	ViewerID      int64 `json:"viewer_id"`
	ChatID        int64 `json:"chat_id"`
	UpToMessageID int64 `json:"up_to_message_id"`
}

// HideMessageData requests a global hide of a message.
type HideMessageData struct {
	RequesterID int64 `json:"requester_id"`
	MessageID   int64 `json:"message_id"`
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageEventData wraps a message for message-created, message-sent and notification.
type MessageEventData struct {
	Message Message `json:"message"`
}

// ReadAdvancedData is sent to a chat room after a read pointer moves.
type ReadAdvancedData struct {
	ChatID        int64 `json:"chat_id"`
	ViewerID      int64 `json:"viewer_id"`
	UpToMessageID int64 `json:"up_to_message_id"`
}

// MessageHiddenData is sent to a chat room after a message is hidden.
type MessageHiddenData struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// ErrorData is sent to the originating connection only.
type ErrorData struct {
	Reason string `json:"reason"`
}
