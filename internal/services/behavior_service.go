package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"cohort/internal/database"
	"cohort/internal/models"
	"cohort/internal/vectors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EMA blend factors. Saving a profile is a stronger identity signal than
// typing a search, so saves pull the adaptive vector harder.
const (
	searchBlendAlpha = 0.2
	saveBlendAlpha   = 0.3
)

// Adaptive blend weight for similarity queries: behavior contributes
// 20% at zero engagement, growing to at most 40% so observed behavior can
// never fully override declared identity.
const (
	adaptiveBaseWeight = 0.2
	adaptiveMaxWeight  = 0.4
	adaptivePerPoint   = 0.002
)

// BehaviorService maintains each user's adaptive vector from interaction
// signals. All tracking entry points are best-effort: handlers invoke them
// off the request path and only log failures, the primary user action never
// depends on them.
type BehaviorService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	profiles   *mongo.Collection
	embeddings EmbeddingProvider
}

// NewBehaviorService creates a behavior tracking service.
func NewBehaviorService(mongodb *database.MongoDB, embeddings EmbeddingProvider) *BehaviorService {
	return &BehaviorService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionUserBehavior),
		profiles:   mongodb.Collection(database.CollectionProfiles),
		embeddings: embeddings,
	}
}

// TrackSearch blends a search query's embedding into the user's adaptive
// vector and records the raw query.
func (s *BehaviorService) TrackSearch(ctx context.Context, userID, orgID, query string) error {
	queryVec, err := s.embeddings.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed search query: %w", err)
	}

	behavior, err := s.loadOrCreate(ctx, userID, orgID)
	if err != nil {
		return err
	}

	applySearch(behavior, queryVec, query, s.embeddings.Dim())
	return s.save(ctx, behavior)
}

// TrackSave blends the saved profile's stored embedding into the saver's
// adaptive vector. A save with no resolvable embedding still counts toward
// engagement.
func (s *BehaviorService) TrackSave(ctx context.Context, userID, orgID, savedUserID string) error {
	var saved models.Profile
	err := s.profiles.FindOne(ctx, bson.M{"userId": savedUserID}).Decode(&saved)
	if err != nil {
		return fmt.Errorf("failed to load saved profile %s: %w", savedUserID, err)
	}

	savedVec, err := saved.EmbeddingVector(s.embeddings.Dim())
	if err != nil {
		log.Printf("⚠️ [BEHAVIOR] Malformed embedding on saved profile %s, counting save without blend: %v", savedUserID, err)
		savedVec = nil
	}

	behavior, err := s.loadOrCreate(ctx, userID, orgID)
	if err != nil {
		return err
	}

	applySave(behavior, savedVec, s.embeddings.Dim())
	return s.save(ctx, behavior)
}

// TrackView counts a profile view toward engagement. No vector blend: a
// view is too weak a signal to move identity.
func (s *BehaviorService) TrackView(ctx context.Context, userID, orgID string) error {
	behavior, err := s.loadOrCreate(ctx, userID, orgID)
	if err != nil {
		return err
	}

	applyView(behavior)
	return s.save(ctx, behavior)
}

// AdaptiveEmbedding returns the blended query vector for similarity search:
// the static profile embedding pulled toward the behavior vector by a
// weight that grows with engagement. With no behavior record (or an
// unusable behavior vector) the profile embedding is returned unmodified.
// A user with no profile embedding is a precondition failure.
func (s *BehaviorService) AdaptiveEmbedding(ctx context.Context, userID string) (vectors.Vector, error) {
	var profile models.Profile
	err := s.profiles.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: no profile for user %s", ErrPrecondition, userID)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	profileVec, err := profile.EmbeddingVector(s.embeddings.Dim())
	if err != nil || len(profileVec) == 0 {
		return nil, fmt.Errorf("%w: user %s has no profile embedding", ErrPrecondition, userID)
	}

	var behavior models.UserBehavior
	err = s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&behavior)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return profileVec, nil
		}
		return nil, fmt.Errorf("failed to load behavior: %w", err)
	}

	behaviorVec, err := behavior.AdaptiveEmbedding(s.embeddings.Dim())
	if err != nil {
		log.Printf("⚠️ [BEHAVIOR] Malformed adaptive vector for user %s, using profile embedding: %v", userID, err)
		return profileVec, nil
	}
	if len(behaviorVec) == 0 {
		return profileVec, nil
	}

	w := adaptiveWeight(behavior.EngagementScore)
	return vectors.Blend(profileVec, behaviorVec, w), nil
}

// Behavior returns the raw behavior record, or nil when none exists yet.
func (s *BehaviorService) Behavior(ctx context.Context, userID string) (*models.UserBehavior, error) {
	var behavior models.UserBehavior
	err := s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&behavior)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load behavior: %w", err)
	}
	return &behavior, nil
}

// RecentSearchesByUser returns recent search strings per user for keyword
// pooling during clustering. Missing users simply have no entry.
func (s *BehaviorService) RecentSearchesByUser(ctx context.Context, orgID string) (map[string][]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"orgId": orgID})
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior records: %w", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string][]string)
	for cursor.Next(ctx) {
		var behavior models.UserBehavior
		if err := cursor.Decode(&behavior); err != nil {
			continue
		}
		if len(behavior.RecentSearches) > 0 {
			out[behavior.UserID] = behavior.RecentSearches
		}
	}
	return out, cursor.Err()
}

func (s *BehaviorService) loadOrCreate(ctx context.Context, userID, orgID string) (*models.UserBehavior, error) {
	var behavior models.UserBehavior
	err := s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&behavior)
	if err == nil {
		return &behavior, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to load behavior: %w", err)
	}

	now := time.Now()
	return &models.UserBehavior{
		UserID:    userID,
		OrgID:     orgID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *BehaviorService) save(ctx context.Context, behavior *models.UserBehavior) error {
	behavior.UpdatedAt = time.Now()
	_, err := s.collection.ReplaceOne(
		ctx,
		bson.M{"userId": behavior.UserID},
		behavior,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save behavior record: %w", err)
	}
	return nil
}

// applySearch mutates a behavior record for one search interaction.
// Separated from storage so the EMA math is testable in isolation.
func applySearch(b *models.UserBehavior, queryVec vectors.Vector, query string, dim int) {
	current, err := b.AdaptiveEmbedding(dim)
	if err != nil {
		current = nil
	}
	b.AdaptiveVector = vectors.Blend(current, queryVec, searchBlendAlpha)

	b.RecentSearches = append([]string{query}, b.RecentSearches...)
	if len(b.RecentSearches) > models.MaxRecentSearches {
		b.RecentSearches = b.RecentSearches[:models.MaxRecentSearches]
	}

	b.TotalSearches++
	touch(b)
}

// applySave mutates a behavior record for one save interaction. A nil
// savedVec still counts the save.
func applySave(b *models.UserBehavior, savedVec vectors.Vector, dim int) {
	if len(savedVec) > 0 {
		current, err := b.AdaptiveEmbedding(dim)
		if err != nil {
			current = nil
		}
		b.AdaptiveVector = vectors.Blend(current, savedVec, saveBlendAlpha)
	}

	b.TotalSaves++
	touch(b)
}

// applyView mutates a behavior record for one profile view.
func applyView(b *models.UserBehavior) {
	b.TotalProfileViews++
	touch(b)
}

func touch(b *models.UserBehavior) {
	b.EngagementScore = engagementScore(b.TotalSearches, b.TotalSaves, b.TotalProfileViews)
	b.LastInteraction = time.Now()
}

// engagementScore weights the counters by how strongly each signal encodes
// identity: saves highest per unit, then searches, then views. Clamped to
// [0, 100] by the per-signal caps.
func engagementScore(searches, saves, views int64) int {
	score := min64(30, 2*searches) + min64(40, 5*saves) + min64(30, views)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

// adaptiveWeight maps engagement to the behavior share of the blended
// search identity.
func adaptiveWeight(engagement int) float64 {
	w := adaptiveBaseWeight + adaptivePerPoint*float64(engagement)
	if w > adaptiveMaxWeight {
		w = adaptiveMaxWeight
	}
	return w
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
