package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"LegalWise/internal/db"
	"LegalWise/internal/model"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRepository resolves marketplace users on the messaging side.
// Identity issuance is external; these documents are synced in so the chat
// surface can validate roles and render counterpart details.
type ParticipantRepository interface {
	Get(ctx context.Context, id string) (*model.Participant, error)
	Upsert(ctx context.Context, p model.Participant) error
	ListByRole(ctx context.Context, role string) ([]model.Participant, error)
}

type participantRepository struct {
	mongoRepo *db.Repository[model.Participant]
}

func NewParticipantRepository(repo *db.Repository[model.Participant]) ParticipantRepository {
	return &participantRepository{mongoRepo: repo}
}

func (r *participantRepository) Get(ctx context.Context, id string) (*model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("_id", id).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("fetch participant: %w", err)
	}
	return p, nil
}

func (r *participantRepository) Upsert(ctx context.Context, p model.Participant) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	p.SyncedAt = &now
	if _, err := r.mongoRepo.ReplaceOne(ctx, db.NewFilter().Eq("_id", p.ID).Build(), p); err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

func (r *participantRepository) ListByRole(ctx context.Context, role string) ([]model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.mongoRepo.FindAllSorted(ctx,
		db.NewFilter().Eq("role", role).Build(),
		db.SortSpec{Field: "display_name"},
	)
}
