package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cohort/internal/database"
	"cohort/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProfileUpdateRequest carries the editable profile fields. Nil pointers
// leave the stored value untouched.
type ProfileUpdateRequest struct {
	Background       *string   `json:"background,omitempty"`
	Expertise        *string   `json:"expertise,omitempty"`
	Interests        *string   `json:"interests,omitempty"`
	AvailabilityTags *[]string `json:"availability_tags,omitempty"`
	OptedIn          *bool     `json:"opted_in,omitempty"`
}

// ProfileService manages member profiles and keeps their identity
// embeddings in sync. Editing any identity field regenerates the
// embedding; availability tags and opt-in changes never do.
type ProfileService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	embeddings EmbeddingProvider
}

// NewProfileService creates a new profile service.
func NewProfileService(mongodb *database.MongoDB, embeddings EmbeddingProvider) *ProfileService {
	return &ProfileService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionProfiles),
		embeddings: embeddings,
	}
}

// Get returns a member's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: profile not found for user %s", ErrPrecondition, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// Upsert applies the requested field changes and regenerates the identity
// embedding when background, expertise, or interests changed. A profile
// whose text no longer passes eligibility keeps no embedding at all, which
// removes it from clustering and matching until the text improves.
func (s *ProfileService) Upsert(ctx context.Context, userID, orgID string, req *ProfileUpdateRequest) (*models.Profile, error) {
	now := time.Now()

	profile := &models.Profile{}
	err := s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(profile)
	if err == mongo.ErrNoDocuments {
		profile = &models.Profile{
			UserID:    userID,
			OrgID:     orgID,
			OptedIn:   true,
			CreatedAt: now,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	identityChanged := false
	if req.Background != nil && *req.Background != profile.Background {
		profile.Background = *req.Background
		identityChanged = true
	}
	if req.Expertise != nil && *req.Expertise != profile.Expertise {
		profile.Expertise = *req.Expertise
		identityChanged = true
	}
	if req.Interests != nil && *req.Interests != profile.Interests {
		profile.Interests = *req.Interests
		identityChanged = true
	}
	if req.AvailabilityTags != nil {
		profile.AvailabilityTags = *req.AvailabilityTags
	}
	if req.OptedIn != nil {
		profile.OptedIn = *req.OptedIn
	}
	profile.UpdatedAt = now

	if identityChanged {
		if err := s.refreshEmbedding(ctx, profile); err != nil {
			return nil, err
		}
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"userId": userID}, profile, opts); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	return profile, nil
}

// SetOptIn flips matching and clustering visibility without touching the
// stored embedding.
func (s *ProfileService) SetOptIn(ctx context.Context, userID string, optedIn bool) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"optedIn": optedIn, "updatedAt": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to update opt-in: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: profile not found for user %s", ErrPrecondition, userID)
	}
	log.Printf("👤 [PROFILE] User %s opted %s", userID, optInWord(optedIn))
	return nil
}

// RefreshEmbedding regenerates one profile's embedding in place. Used by
// the backfill job for profiles with missing or stale embeddings.
func (s *ProfileService) RefreshEmbedding(ctx context.Context, profile *models.Profile) error {
	if err := s.refreshEmbedding(ctx, profile); err != nil {
		return err
	}
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"userId": profile.UserID},
		bson.M{"$set": bson.M{
			"embedding":          profile.Embedding,
			"embeddingUpdatedAt": profile.EmbeddingUpdatedAt,
			"updatedAt":          time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (s *ProfileService) refreshEmbedding(ctx context.Context, profile *models.Profile) error {
	if err := CheckEligibility(profile); err != nil {
		if errors.Is(err, ErrDataInsufficiency) {
			profile.Embedding = nil
			profile.EmbeddingUpdatedAt = nil
			log.Printf("⏭️ [PROFILE] User %s profile not eligible for embedding: %v", profile.UserID, err)
			return nil
		}
		return err
	}

	text, err := BuildIdentityText(profile)
	if err != nil {
		return err
	}

	vec, err := s.embeddings.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed profile for user %s: %w", profile.UserID, err)
	}

	now := time.Now()
	profile.Embedding = vec
	profile.EmbeddingUpdatedAt = &now
	return nil
}

func optInWord(optedIn bool) string {
	if optedIn {
		return "in"
	}
	return "out"
}
