package model

import "time"

// Conversation is a durable two-party channel between exactly one client and
// one lawyer. It is created lazily on first contact and never deleted.
type Conversation struct {
	ID             string         `json:"id" bson:"_id,omitempty"`
	ClientID       string         `json:"clientId" bson:"client_id"`
	LawyerID       string         `json:"lawyerId" bson:"lawyer_id"`
	ParticipantIDs []string       `json:"participantIds" bson:"participant_ids"`
	LastMessage    *LastMessage   `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
	UnreadCount    map[string]int `json:"unreadCount" bson:"unread_count"`
	LastSeq        int64          `json:"-" bson:"last_seq"`
	LastActivityAt time.Time      `json:"lastActivityAt" bson:"last_activity_at"`
	CreatedAt      time.Time      `json:"createdAt" bson:"created_at"`
}

// LastMessage is the denormalized snapshot of the most recent persisted
// message, maintained by the durable store in the same operation that
// appends the message.
type LastMessage struct {
	MessageID string    `json:"messageId" bson:"message_id"`
	Content   string    `json:"content" bson:"content"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	SentAt    time.Time `json:"sentAt" bson:"sent_at"`
}

// HasParticipant reports whether id is one of the two parties.
func (c *Conversation) HasParticipant(id string) bool {
	return id == c.ClientID || id == c.LawyerID
}

// Counterpart returns the other party for a given participant.
func (c *Conversation) Counterpart(participantID string) (string, bool) {
	switch participantID {
	case c.ClientID:
		return c.LawyerID, true
	case c.LawyerID:
		return c.ClientID, true
	default:
		return "", false
	}
}

// RoleOf returns the role a participant plays in this conversation.
func (c *Conversation) RoleOf(participantID string) string {
	if participantID == c.LawyerID {
		return RoleLawyer
	}
	return RoleClient
}
