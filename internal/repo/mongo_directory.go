package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"LegalWise/internal/db"
	"LegalWise/internal/model"
)

// The conversation directory is the read-optimized view over the durable
// log: per-participant conversation listings with the denormalized
// last-message snapshot and unread counters. It is mutated only from
// Append/MarkRead, under the same per-conversation lock, never ad hoc.

func (s *mongoStore) applyAppend(ctx context.Context, conv *model.Conversation, msg model.Message, recipient string) error {
	update := bson.M{
		"$set": bson.M{
			"last_message": model.LastMessage{
				MessageID: msg.ID,
				Content:   msg.Content,
				SenderID:  msg.SenderID,
				SentAt:    msg.CreatedAt,
			},
			"last_activity_at": msg.CreatedAt,
			"last_seq":         msg.Seq,
		},
		// only the recipient's counter moves; the sender's own count is
		// unaffected by their own message
		"$inc": bson.M{
			"unread_count." + recipient: 1,
		},
	}

	_, err := s.conversations.UpdateOneRaw(ctx, db.NewFilter().Eq("_id", conv.ID).Build(), update)
	if err != nil {
		s.logger.Error("directory update failed after append",
			zap.Error(err),
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
		)
		return fmt.Errorf("update conversation directory: %w", err)
	}
	return nil
}

func (s *mongoStore) applyMarkRead(ctx context.Context, conversationID, readerID string) error {
	set := bson.M{"unread_count." + readerID: 0}
	_, err := s.conversations.UpdateOne(ctx, db.NewFilter().Eq("_id", conversationID).Build(), set)
	if err != nil {
		return fmt.Errorf("reset unread counter: %w", err)
	}
	return nil
}

func (s *mongoStore) ListConversations(ctx context.Context, participantID string) ([]model.Conversation, error) {
	ctx, cancel := s.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	convs, err := s.conversations.FindAllSorted(ctx,
		db.NewFilter().Eq("participant_ids", participantID).Build(),
		db.SortSpec{Field: "last_activity_at", Desc: true},
	)
	if err != nil {
		s.logger.Error("failed to query conversations",
			zap.Error(err),
			zap.String("participant_id", participantID),
		)
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	s.logger.Debug("conversations retrieved",
		zap.String("participant_id", participantID),
		zap.Int("count", len(convs)),
	)
	return convs, nil
}
