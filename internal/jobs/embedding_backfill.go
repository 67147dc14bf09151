package jobs

import (
	"context"
	"log"
	"time"

	"cohort/internal/database"
	"cohort/internal/models"
	"cohort/internal/services"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Runs before the nightly clustering sweep so freshly backfilled
// embeddings are picked up by the same night's run.
const backfillCronSpec = "30 2 * * *"

// EmbeddingBackfillJob regenerates embeddings for opted-in profiles whose
// embedding is missing or older than the profile's last edit. Individual
// failures are logged and skipped; one bad profile never stops the batch.
type EmbeddingBackfillJob struct {
	mongodb  *database.MongoDB
	profiles *mongo.Collection
	service  *services.ProfileService
	schedule cron.Schedule
}

// NewEmbeddingBackfillJob creates the backfill job.
func NewEmbeddingBackfillJob(mongodb *database.MongoDB, service *services.ProfileService) *EmbeddingBackfillJob {
	schedule, _ := cron.ParseStandard(backfillCronSpec)
	return &EmbeddingBackfillJob{
		mongodb:  mongodb,
		profiles: mongodb.Collection(database.CollectionProfiles),
		service:  service,
		schedule: schedule,
	}
}

// Run scans for profiles needing embeddings and regenerates them.
func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	log.Println("🧮 [BACKFILL] Starting embedding backfill...")
	startTime := time.Now()

	cursor, err := j.profiles.Find(ctx, bson.M{
		"optedIn": true,
		"$or": []bson.M{
			{"embedding": bson.M{"$exists": false}},
			{"embedding": nil},
			{"$expr": bson.M{"$lt": []string{"$embeddingUpdatedAt", "$updatedAt"}}},
		},
	})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var refreshed, failed int
	for cursor.Next(ctx) {
		var profile models.Profile
		if err := cursor.Decode(&profile); err != nil {
			failed++
			continue
		}
		if err := j.service.RefreshEmbedding(ctx, &profile); err != nil {
			failed++
			log.Printf("⚠️ [BACKFILL] Failed to refresh embedding for user %s: %v", profile.UserID, err)
			continue
		}
		refreshed++
	}
	if err := cursor.Err(); err != nil {
		return err
	}

	log.Printf("✅ [BACKFILL] Backfill complete: %d refreshed, %d failed in %v",
		refreshed, failed, time.Since(startTime))
	return nil
}

// GetNextRunTime returns the next scheduled backfill time.
func (j *EmbeddingBackfillJob) GetNextRunTime() time.Time {
	return j.schedule.Next(time.Now())
}
