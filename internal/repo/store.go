package repo

import (
	"context"
	"errors"

	"LegalWise/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("participant does not belong to conversation")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrInvalidConversation  = errors.New("invalid conversation id")
	ErrMaxRetriesExceeded   = errors.New("maximum retry attempts exceeded")
	ErrOperationTimeout     = errors.New("operation timeout exceeded")
)

// DurableStore is the single source of truth for conversations and messages.
//
// Append and MarkRead are atomic with their conversation-directory updates:
// the last-message snapshot and the per-participant unread counters are
// mutated only inside these two operations, and writes are serialized per
// conversation. Append is idempotent per (conversation, clientNonce): a
// retry carrying a nonce that was already persisted returns the existing
// message instead of creating a duplicate.
type DurableStore interface {
	// EnsureConversation returns the conversation between a client and a
	// lawyer, creating it on first contact. Idempotent per pair.
	EnsureConversation(ctx context.Context, clientID, lawyerID string) (*model.Conversation, error)

	// GetConversation fetches a conversation by id.
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)

	// Append persists a message, assigning its canonical id, timestamp and
	// per-conversation sequence, and updates the recipient's unread counter
	// and the last-message snapshot in the same serialized operation.
	Append(ctx context.Context, conversationID, senderID, content, clientNonce string) (*model.Message, error)

	// MarkRead flips read=true on every message authored by the reader's
	// counterpart and zeroes the reader's unread counter. Idempotent; returns
	// the number of messages affected.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)

	// ListMessages returns the full history sorted by created_at ascending,
	// sequence as tie-break. This is the authoritative ordering.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	// ListConversations returns a participant's conversations sorted by last
	// activity, most recent first.
	ListConversations(ctx context.Context, participantID string) ([]model.Conversation, error)
}
