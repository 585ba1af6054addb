package model

import "time"

// Participant is the messaging-side view of a marketplace user. Identity
// issuance lives outside this service; these documents are synced in so the
// chat surface can validate membership and render counterpart details.
type Participant struct {
	ID          string     `json:"id" bson:"_id,omitempty"`
	Role        string     `json:"role" bson:"role"`
	DisplayName string     `json:"displayName" bson:"display_name"`
	Email       string     `json:"email" bson:"email"`
	Avatar      string     `json:"avatar" bson:"avatar"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty" bson:"synced_at,omitempty"`
}
