package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"cohort/internal/config"
	"cohort/internal/database"
	"cohort/internal/logging"
	"cohort/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// Per-scope Redis lock so overlapping triggers (cron plus admin) never
	// run the same organization concurrently.
	clusterLockPrefix = "cohort:cluster:lock:"
	clusterLockTTL    = 15 * time.Minute

	// graphCachePrefix keys the cached membership graph per organization.
	// A completed run invalidates the entry.
	graphCachePrefix = "cohort:graph:"
)

// GraphCacheKey returns the Redis key for an organization's cached
// membership graph.
func GraphCacheKey(orgID string) string {
	return graphCachePrefix + orgID
}

// ClusteringService orchestrates a full clustering run for one
// organization: load eligible profiles, run the engine, label the
// discovered clusters, and atomically replace the stored generation.
type ClusteringService struct {
	mongodb  *database.MongoDB
	profiles *mongo.Collection
	behavior *BehaviorService
	labeler  *ClusterLabeler
	store    *ClusterStore
	redis    *RedisService
	cfgStore *config.ClusteringConfigStore
	cfg      *config.Config

	mu sync.Mutex // serializes runs within this process
}

// NewClusteringService creates the clustering orchestrator.
func NewClusteringService(mongodb *database.MongoDB, behavior *BehaviorService, labeler *ClusterLabeler, store *ClusterStore, redis *RedisService, cfgStore *config.ClusteringConfigStore, cfg *config.Config) *ClusteringService {
	return &ClusteringService{
		mongodb:  mongodb,
		profiles: mongodb.Collection(database.CollectionProfiles),
		behavior: behavior,
		labeler:  labeler,
		store:    store,
		redis:    redis,
		cfgStore: cfgStore,
		cfg:      cfg,
	}
}

// RunForOrg executes one clustering run for a single organization. A run
// that finds fewer eligible profiles than the population floor returns
// ErrDataInsufficiency and leaves the previous generation untouched. A
// run that survives the floor but yields zero clusters is still a valid
// generation and replaces the previous one.
func (s *ClusteringService) RunForOrg(ctx context.Context, orgID string) (*models.ClusterRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.New().String()
	lockKey := clusterLockPrefix + orgID

	if s.redis != nil {
		acquired, err := s.redis.AcquireLock(ctx, lockKey, runID, clusterLockTTL)
		if err != nil {
			log.Printf("⚠️ [CLUSTERING] Redis lock error for org %s, proceeding without lock: %v", orgID, err)
		} else if !acquired {
			return nil, fmt.Errorf("%w: clustering already running for org %s", ErrPrecondition, orgID)
		} else {
			defer func() {
				if _, err := s.redis.ReleaseLock(context.Background(), lockKey, runID); err != nil {
					log.Printf("⚠️ [CLUSTERING] Failed to release lock for org %s: %v", orgID, err)
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ClusterRunTimeout)
	defer cancel()

	logger := logging.WithRun(runID, orgID)
	started := time.Now()
	logger.Info("clustering run started")

	run, err := s.run(runCtx, logger, orgID, runID, started)
	elapsed := time.Since(started)

	if m := GetMetrics(); m != nil {
		switch {
		case err == nil:
			m.RecordClusteringRun("completed", elapsed.Seconds())
			m.RecordClusterResult(orgID, run.Silhouette, run.ClusterCount)
		case errors.Is(err, ErrDataInsufficiency):
			m.RecordClusteringRun("skipped", elapsed.Seconds())
		default:
			m.RecordClusteringRun("failed", elapsed.Seconds())
		}
	}

	if err != nil {
		logger.Error("clustering run failed", "error", err, "duration", elapsed.String())
		return nil, err
	}

	logger.Info("clustering run completed",
		"k", run.K,
		"clusters", run.ClusterCount,
		"members", run.MemberCount,
		"silhouette", run.Silhouette,
		"duration", elapsed.String())
	return run, nil
}

// RunAll runs clustering for every organization that has opted-in
// profiles. Organizations are processed sequentially; one failing scope
// does not stop the others.
func (s *ClusteringService) RunAll(ctx context.Context) error {
	orgIDs, err := s.profiles.Distinct(ctx, "orgId", bson.M{"optedIn": true})
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	log.Printf("🔄 [CLUSTERING] Starting clustering sweep across %d organizations", len(orgIDs))

	var failures int
	for _, raw := range orgIDs {
		orgID, ok := raw.(string)
		if !ok || orgID == "" {
			continue
		}
		if _, err := s.RunForOrg(ctx, orgID); err != nil {
			if errors.Is(err, ErrDataInsufficiency) {
				log.Printf("⏭️ [CLUSTERING] Skipped org %s: %v", orgID, err)
				continue
			}
			failures++
			log.Printf("❌ [CLUSTERING] Run failed for org %s: %v", orgID, err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("clustering sweep finished with %d failed organizations", failures)
	}
	log.Printf("✅ [CLUSTERING] Clustering sweep completed")
	return nil
}

func (s *ClusteringService) run(ctx context.Context, logger *slog.Logger, orgID, runID string, started time.Time) (*models.ClusterRun, error) {
	points, err := s.loadEligiblePoints(ctx, orgID)
	if err != nil {
		return nil, err
	}
	logger.Info("eligible profiles loaded", "count", len(points))

	clusteringCfg := s.cfgStore.Get()
	engine := NewClusterEngine(clusteringCfg, time.Now().UnixNano())
	result, err := engine.Run(ctx, points)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(result.Clusters))
	for i, c := range result.Clusters {
		labels[i] = s.labeler.Label(ctx, c.Keywords, c.SampleTexts)
	}

	if err := s.store.ReplaceScope(ctx, orgID, runID, result, labels, clusteringCfg.KeywordsStored); err != nil {
		return nil, err
	}

	if len(result.Clusters) == 0 {
		logger.Warn("run produced no surviving clusters, stored empty generation",
			"dropped_clusters", result.DroppedClusters)
	}

	// The cached membership graph describes the previous generation now.
	if s.redis != nil {
		if err := s.redis.Delete(ctx, graphCachePrefix+orgID); err != nil {
			log.Printf("⚠️ [CLUSTERING] Failed to invalidate graph cache for org %s: %v", orgID, err)
		}
	}

	memberCount := 0
	for _, c := range result.Clusters {
		memberCount += len(c.Members)
	}

	return &models.ClusterRun{
		RunID:        runID,
		OrgID:        orgID,
		K:            result.K,
		Silhouette:   result.Silhouette,
		ClusterCount: len(result.Clusters),
		MemberCount:  memberCount,
		EligibleSize: len(points),
		StartedAt:    started,
		Duration:     time.Since(started).String(),
	}, nil
}

// loadEligiblePoints collects the opted-in profiles that pass eligibility
// and carry a parseable embedding. Recent search history is attached so
// keyword pooling reflects what members look for, not just who they are.
func (s *ClusteringService) loadEligiblePoints(ctx context.Context, orgID string) ([]ProfilePoint, error) {
	cursor, err := s.profiles.Find(ctx, bson.M{
		"orgId":     orgID,
		"optedIn":   true,
		"embedding": bson.M{"$exists": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	defer cursor.Close(ctx)

	searches, err := s.behavior.RecentSearchesByUser(ctx, orgID)
	if err != nil {
		log.Printf("⚠️ [CLUSTERING] Failed to load search history for org %s, continuing without: %v", orgID, err)
		searches = map[string][]string{}
	}

	dim := s.cfg.EmbeddingDim
	var points []ProfilePoint
	var skipped int
	for cursor.Next(ctx) {
		var profile models.Profile
		if err := cursor.Decode(&profile); err != nil {
			skipped++
			continue
		}
		if err := CheckEligibility(&profile); err != nil {
			skipped++
			continue
		}
		vec, err := profile.EmbeddingVector(dim)
		if err != nil || len(vec) == 0 {
			// Legacy documents can hold "", "null", or an empty array;
			// those parse to an absent vector, not an error.
			skipped++
			continue
		}
		points = append(points, ProfilePoint{
			UserID:         profile.UserID,
			Vector:         vec,
			IdentityText:   profile.IdentityText(),
			RecentSearches: searches[profile.UserID],
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	if skipped > 0 {
		log.Printf("⏭️ [CLUSTERING] Skipped %d ineligible or malformed profiles in org %s", skipped, orgID)
	}
	return points, nil
}
