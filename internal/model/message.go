package model

import "time"

// Participant roles in a consultation.
const (
	RoleClient = "client"
	RoleLawyer = "lawyer"
)

// Message is a persisted chat message. The ID, CreatedAt and Seq fields are
// assigned by the durable store at append time, never by a client; a message
// with an empty ID has not been persisted.
type Message struct {
	ID             string    `json:"id" bson:"_id,omitempty"`
	ConversationID string    `json:"conversationId" bson:"conversation_id"`
	SenderID       string    `json:"senderId" bson:"sender_id"`
	SenderRole     string    `json:"senderRole" bson:"sender_role"`
	Content        string    `json:"content" bson:"content"`
	ClientNonce    string    `json:"clientNonce,omitempty" bson:"client_nonce,omitempty"`
	Seq            int64     `json:"seq" bson:"seq"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
	Read           bool      `json:"read" bson:"read"`
}

// Before reports whether m sorts ahead of other in canonical conversation
// order: created_at ascending, per-conversation sequence as the tie-break.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
