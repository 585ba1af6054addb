package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"LegalWise/internal/db"
	"LegalWise/internal/model"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// messageCollection and conversationCollection are the slices of the
// generic repository the store actually touches. *db.Repository[T]
// satisfies them.
type messageCollection interface {
	Create(ctx context.Context, document model.Message) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter bson.M) (*model.Message, error)
	FindAllSorted(ctx context.Context, filter bson.M, sorts ...db.SortSpec) ([]model.Message, error)
	UpdateMany(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error)
}

type conversationCollection interface {
	Create(ctx context.Context, document model.Conversation) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter bson.M) (*model.Conversation, error)
	FindAllSorted(ctx context.Context, filter bson.M, sorts ...db.SortSpec) ([]model.Conversation, error)
	UpdateOne(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error)
	UpdateOneRaw(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error)
}

type mongoStore struct {
	messages      messageCollection
	conversations conversationCollection
	logger        *zap.Logger

	// serializes append/markRead per conversation, and conversation
	// creation per client/lawyer pair
	locks *keyedMutex
}

// NewMongoStore builds the Mongo-backed durable store.
func NewMongoStore(messages *db.Repository[model.Message], conversations *db.Repository[model.Conversation], logger *zap.Logger) DurableStore {
	return &mongoStore{
		messages:      messages,
		conversations: conversations,
		logger:        logger,
		locks:         newKeyedMutex(),
	}
}

func (s *mongoStore) EnsureConversation(ctx context.Context, clientID, lawyerID string) (*model.Conversation, error) {
	pairKey := "pair:" + clientID + ":" + lawyerID
	s.locks.lock(pairKey)
	defer s.locks.unlock(pairKey)

	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("client_id", clientID).Eq("lawyer_id", lawyerID).Build()
	existing, err := s.conversations.FindOne(ctx, filter)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	now := time.Now().UTC()
	conv := model.Conversation{
		ID:             primitive.NewObjectID().Hex(),
		ClientID:       clientID,
		LawyerID:       lawyerID,
		ParticipantIDs: []string{clientID, lawyerID},
		UnreadCount:    map[string]int{clientID: 0, lawyerID: 0},
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if _, err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("client_id", clientID),
		zap.String("lawyer_id", lawyerID),
	)
	return &conv, nil
}

func (s *mongoStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}

	ctx, cancel := s.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conv, err := s.conversations.FindOne(ctx, db.NewFilter().Eq("_id", conversationID).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	return conv, nil
}

func (s *mongoStore) Append(ctx context.Context, conversationID, senderID, content, clientNonce string) (*model.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	s.locks.lock(conversationID)
	defer s.locks.unlock(conversationID)

	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	recipient, ok := conv.Counterpart(senderID)
	if !ok {
		return nil, ErrNotParticipant
	}

	// Idempotency: a retry carrying an already-persisted nonce returns the
	// canonical record instead of appending a duplicate.
	if clientNonce != "" {
		filter := db.NewFilter().
			Eq("conversation_id", conversationID).
			Eq("client_nonce", clientNonce).
			Build()
		existing, err := s.messages.FindOne(ctx, filter)
		if err == nil {
			// The insert and the directory update are two writes. If the
			// first Append persisted the message but failed before the
			// directory caught up, the conversation's last_seq is still
			// behind this record. Re-apply the directory update here so
			// unread counters and the last-message snapshot heal on retry.
			if conv.LastSeq < existing.Seq {
				if err := s.applyAppend(ctx, conv, *existing, recipient); err != nil {
					return nil, err
				}
			}
			s.logger.Debug("duplicate nonce, returning existing message",
				zap.String("conversation_id", conversationID),
				zap.String("client_nonce", clientNonce),
				zap.String("message_id", existing.ID),
			)
			return existing, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("nonce lookup: %w", err)
		}
	}

	msg := model.Message{
		ID:             primitive.NewObjectID().Hex(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     conv.RoleOf(senderID),
		Content:        content,
		ClientNonce:    clientNonce,
		Seq:            conv.LastSeq + 1,
		CreatedAt:      time.Now().UTC(),
		Read:           false,
	}

	if err := s.insertWithRetry(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.applyAppend(ctx, conv, msg, recipient); err != nil {
		return nil, err
	}

	s.logger.Info("message appended",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", conversationID),
		zap.Int64("seq", msg.Seq),
	)
	return &msg, nil
}

func (s *mongoStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	s.locks.lock(conversationID)
	defer s.locks.unlock(conversationID)

	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	counterpart, ok := conv.Counterpart(readerID)
	if !ok {
		return 0, ErrNotParticipant
	}

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		Eq("sender_id", counterpart).
		Eq("read", false).
		Build()
	result, err := s.messages.UpdateMany(ctx, filter, bson.M{"read": true})
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	if err := s.applyMarkRead(ctx, conversationID, readerID); err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (s *mongoStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}

	ctx, cancel := s.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		msgs, err := s.messages.FindAllSorted(ctx,
			db.NewFilter().Eq("conversation_id", conversationID).Build(),
			db.SortSpec{Field: "created_at"},
			db.SortSpec{Field: "seq"},
		)
		if err == nil {
			return msgs, nil
		}

		lastErr = err
		if !s.isRetryableError(err) {
			break
		}
	}

	return nil, s.handleReadError(lastErr, conversationID)
}

// insertWithRetry retries the message insert on transient Mongo errors with
// capped exponential backoff.
func (s *mongoStore) insertWithRetry(ctx context.Context, msg model.Message) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.waitForRetry(ctx, attempt); err != nil {
				return err
			}
			s.logger.Warn("retrying message insert",
				zap.String("conversation_id", msg.ConversationID),
				zap.Int("attempt", attempt+1),
			)
		}

		_, err := s.messages.Create(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		if !s.isRetryableError(err) {
			break
		}
	}

	s.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID),
	)
	if s.isRetryableError(lastErr) {
		return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
	}
	return fmt.Errorf("insert message failed: %w", lastErr)
}

func (s *mongoStore) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *mongoStore) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (s *mongoStore) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (s *mongoStore) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}

	s.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("list messages failed: %w", err)
}
