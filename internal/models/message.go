package models

import "time"

// Message represents a chat message. Only Hidden may change after it is stored.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	ChatID     int64     `db:"chat_id" json:"chat_id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	Text       *string   `db:"text" json:"text,omitempty"`
	MediaRef   *string   `db:"media_ref" json:"media_ref,omitempty"`
	ThumbRef   *string   `db:"thumb_ref" json:"thumb_ref,omitempty"`
	Hidden     bool      `db:"hidden" json:"hidden"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// VisibleAfter reports whether the message renders for a viewer whose clear
// marker is boundary.
func (m Message) VisibleAfter(boundary int64) bool {
	return m.ID > boundary && !m.Hidden
}

// Payload is the content of a message being sent. Empty strings count as absent.
type Payload struct {
	Text     string `json:"text,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
	ThumbRef string `json:"thumb_ref,omitempty"`
}

// Empty reports whether none of text, media or thumbnail is present.
func (p Payload) Empty() bool {
	return p.Text == "" && p.MediaRef == "" && p.ThumbRef == ""
}

// Apply copies the payload onto msg, leaving absent parts nil.
func (p Payload) Apply(msg *Message) {
	msg.Text = optional(p.Text)
	msg.MediaRef = optional(p.MediaRef)
	msg.ThumbRef = optional(p.ThumbRef)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
