package models

import (
	"time"

	"cohort/internal/vectors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxRecentSearches caps the most-recent-first search history per user.
const MaxRecentSearches = 15

// UserBehavior holds the adaptive vector that blends a user's declared
// identity with what they actually do: searches and saves pull the vector
// toward observed interests, views only count toward engagement. One record
// per user, created lazily on first interaction, mutated in place, never
// deleted by this subsystem.
type UserBehavior struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`
	OrgID  string             `bson:"orgId" json:"org_id"`

	// AdaptiveVector is stored raw and parsed through vectors.Parse,
	// same policy as Profile.Embedding.
	AdaptiveVector interface{} `bson:"adaptiveVector,omitempty" json:"-"`

	// RecentSearches is newest-first, capped at MaxRecentSearches.
	RecentSearches []string `bson:"recentSearches,omitempty" json:"recent_searches,omitempty"`

	TotalSearches     int64 `bson:"totalSearches" json:"total_searches"`
	TotalSaves        int64 `bson:"totalSaves" json:"total_saves"`
	TotalProfileViews int64 `bson:"totalProfileViews" json:"total_profile_views"`

	// EngagementScore is derived from the counters, clamped to [0,100].
	EngagementScore int `bson:"engagementScore" json:"engagement_score"`

	LastInteraction time.Time `bson:"lastInteraction" json:"last_interaction"`
	CreatedAt       time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt       time.Time `bson:"updatedAt" json:"updated_at"`
}

// AdaptiveEmbedding parses the stored adaptive vector defensively.
func (b *UserBehavior) AdaptiveEmbedding(dim int) (vectors.Vector, error) {
	return vectors.Parse(b.AdaptiveVector, dim)
}
