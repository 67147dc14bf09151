package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"cohort/internal/config"
	"cohort/internal/database"
	"cohort/internal/models"
	"cohort/internal/vectors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Match is one similarity-search result.
type Match struct {
	UserID       string  `json:"user_id"`
	Similarity   float64 `json:"similarity"`
	MatchPercent int     `json:"match_percent"`
}

// candidate is a raw nearest-neighbor hit before filtering and ranking.
type candidate struct {
	UserID string
	Score  float64
}

// vectorSearcher is the contract of the vector-capable store's
// nearest-neighbor function: ranked candidates with a cosine similarity
// score. Production uses Atlas vector search with an in-process scan
// fallback; tests substitute a double.
type vectorSearcher interface {
	Search(ctx context.Context, query vectors.Vector, orgID string, limit int) ([]candidate, error)
}

// SimilarityService answers "who is like me" queries using the blended
// profile+behavior vector.
type SimilarityService struct {
	behavior   *BehaviorService
	embeddings *EmbeddingService
	searcher   vectorSearcher
	cfgStore   *config.ClusteringConfigStore
}

// NewSimilarityService creates the similarity search service.
func NewSimilarityService(mongodb *database.MongoDB, behavior *BehaviorService, embeddings *EmbeddingService, cfgStore *config.ClusteringConfigStore) *SimilarityService {
	return &SimilarityService{
		behavior:   behavior,
		embeddings: embeddings,
		searcher: &mongoVectorSearcher{
			profiles: mongodb.Collection(database.CollectionProfiles),
			dim:      embeddings.Dim(),
		},
		cfgStore: cfgStore,
	}
}

// SimilarMembers returns opted-in members most similar to the requesting
// user's blended adaptive embedding. A user without a profile embedding is
// a precondition failure, not an empty result.
func (s *SimilarityService) SimilarMembers(ctx context.Context, userID, orgID string) ([]Match, error) {
	queryVec, err := s.behavior.AdaptiveEmbedding(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, queryVec, userID, orgID)
}

// SearchByQuery finds members similar to a free-text query. The caller is
// responsible for tracking the search as behavior, off the request path.
func (s *SimilarityService) SearchByQuery(ctx context.Context, userID, orgID, query string) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrPrecondition)
	}

	queryVec, err := s.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, queryVec, userID, orgID)
}

func (s *SimilarityService) search(ctx context.Context, queryVec vectors.Vector, userID, orgID string) ([]Match, error) {
	cfg := s.cfgStore.Get()
	started := time.Now()

	candidates, err := s.searcher.Search(ctx, queryVec, orgID, cfg.CandidateFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := rankMatches(candidates, userID, cfg.SimilarityThreshold, cfg.ResultLimit)
	if m := GetMetrics(); m != nil {
		m.RecordSimilaritySearch(time.Since(started).Seconds())
	}
	log.Printf("🔍 [SIMILARITY] %d/%d candidates above %.2f for user %s", len(matches), len(candidates), cfg.SimilarityThreshold, userID)
	return matches, nil
}

// rankMatches excludes the querying user, applies the similarity
// threshold, sorts descending, caps the result, and annotates each match
// with a 0-100 integer percentage.
func rankMatches(candidates []candidate, selfUserID string, threshold float64, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == selfUserID || c.Score < threshold {
			continue
		}
		matches = append(matches, Match{
			UserID:       c.UserID,
			Similarity:   c.Score,
			MatchPercent: int(math.Round(c.Score * 100)),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].UserID < matches[j].UserID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// mongoVectorSearcher queries Atlas vector search and falls back to an
// in-process cosine scan when the vector index is unavailable (local
// deployments, fresh environments).
type mongoVectorSearcher struct {
	profiles *mongo.Collection
	dim      int
}

func (m *mongoVectorSearcher) Search(ctx context.Context, query vectors.Vector, orgID string, limit int) ([]candidate, error) {
	candidates, err := m.atlasSearch(ctx, query, orgID, limit)
	if err == nil {
		return candidates, nil
	}

	log.Printf("⚠️ [SIMILARITY] Vector index unavailable, scanning profiles: %v", err)
	return m.scanSearch(ctx, query, orgID, limit)
}

func (m *mongoVectorSearcher) atlasSearch(ctx context.Context, query vectors.Vector, orgID string, limit int) ([]candidate, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         database.VectorIndexName,
			"path":          "embedding",
			"queryVector":   query,
			"numCandidates": limit * 10,
			"limit":         limit,
			"filter":        bson.M{"orgId": orgID, "optedIn": true},
		}}},
		{{Key: "$project", Value: bson.M{
			"userId": 1,
			"score":  bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.profiles.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var candidates []candidate
	for cursor.Next(ctx) {
		var doc struct {
			UserID string  `bson:"userId"`
			Score  float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		candidates = append(candidates, candidate{UserID: doc.UserID, Score: doc.Score})
	}
	return candidates, cursor.Err()
}

// scanSearch is the brute-force path: load opted-in profiles and rank by
// cosine similarity in process. Fine for org-sized populations.
func (m *mongoVectorSearcher) scanSearch(ctx context.Context, query vectors.Vector, orgID string, limit int) ([]candidate, error) {
	cursor, err := m.profiles.Find(ctx, bson.M{"orgId": orgID, "optedIn": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var candidates []candidate
	for cursor.Next(ctx) {
		var profile models.Profile
		if err := cursor.Decode(&profile); err != nil {
			continue
		}

		vec, err := profile.EmbeddingVector(m.dim)
		if err != nil || len(vec) == 0 {
			// Malformed vectors are treated as absent, never zero.
			continue
		}
		candidates = append(candidates, candidate{
			UserID: profile.UserID,
			Score:  vectors.Cosine(query, vec),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
