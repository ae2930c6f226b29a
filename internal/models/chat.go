package models

import "time"

// Chat represents a private chat between exactly two users.
// The (ParticipantA, ParticipantB) order is fixed per row but carries no meaning.
type Chat struct {
	ID             int64     `db:"id" json:"id"`
	ParticipantA   int64     `db:"participant_a" json:"participant_a"`
	ParticipantB   int64     `db:"participant_b" json:"participant_b"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastActivityAt time.Time `db:"last_activity_at" json:"last_activity_at"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID int64) bool {
	return userID != 0 && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Counterpart returns the other participant, or 0 if userID is not a member.
func (c Chat) Counterpart(userID int64) int64 {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return 0
}

// ChatSummary is one row of a viewer's conversation list.
type ChatSummary struct {
	ChatID             int64     `json:"chat_id"`
	CounterpartID      int64     `json:"counterpart_id"`
	LastVisibleMessage *Message  `json:"last_visible_message,omitempty"`
	UnreadCount        int       `json:"unread_count"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}
