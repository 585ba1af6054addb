package event

import (
	"time"

	"LegalWise/internal/model"
)

// Frame types carried over the push channel.
const (
	// FrameMessage is a provisional send: client-assigned nonce, client-local
	// timestamp, no canonical id. It is rendered optimistically and never
	// counted toward unread totals or persisted ordering.
	FrameMessage = "message"
	// FrameMessageCanonical carries the store-assigned id and timestamp for a
	// persisted message.
	FrameMessageCanonical = "message_canonical"
	// FrameRead notifies the counterpart that a participant marked the
	// conversation read.
	FrameRead = "read"
	// FrameTyping relays a typing indicator; never persisted.
	FrameTyping = "typing"
)

// Frame is the wire envelope for all push-channel traffic, in both
// directions. Which fields are set depends on Type.
type Frame struct {
	Type           string    `json:"type"`
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderRole     string    `json:"senderRole,omitempty"`
	Content        string    `json:"content,omitempty"`
	ClientNonce    string    `json:"clientNonce,omitempty"`
	Seq            int64     `json:"seq,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
	Typing         bool      `json:"typing,omitempty"`
}

// Canonical reports whether the frame carries a store-assigned message id.
func (f Frame) Canonical() bool {
	return f.Type == FrameMessageCanonical && f.ID != ""
}

// CanonicalFrame builds the push frame for a persisted message.
func CanonicalFrame(msg model.Message) Frame {
	return Frame{
		Type:           FrameMessageCanonical,
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderRole:     msg.SenderRole,
		Content:        msg.Content,
		ClientNonce:    msg.ClientNonce,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt,
	}
}

// Message converts a canonical frame back into the persisted message it
// describes.
func (f Frame) Message() model.Message {
	return model.Message{
		ID:             f.ID,
		ConversationID: f.ConversationID,
		SenderID:       f.SenderID,
		SenderRole:     f.SenderRole,
		Content:        f.Content,
		ClientNonce:    f.ClientNonce,
		Seq:            f.Seq,
		CreatedAt:      f.CreatedAt,
	}
}
