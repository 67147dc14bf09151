package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cohort/internal/database"
	"cohort/internal/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const scheduleCollection = "cluster_schedules"

// SchedulerService manages per-organization clustering schedules. An
// organization with an enabled schedule is clustered on its own cron
// expression instead of waiting for the global nightly sweep.
type SchedulerService struct {
	scheduler  gocron.Scheduler
	mongodb    *database.MongoDB
	redis      *RedisService
	clustering *ClusteringService
	instanceID string
	mu         sync.Mutex
	jobs       map[string]gocron.Job // orgID -> job
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(mongodb *database.MongoDB, redis *RedisService, clustering *ClusteringService) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SchedulerService{
		scheduler:  scheduler,
		mongodb:    mongodb,
		redis:      redis,
		clustering: clustering,
		instanceID: uuid.New().String(),
		jobs:       make(map[string]gocron.Job),
	}, nil
}

// Start loads all enabled schedules and starts the scheduler.
func (s *SchedulerService) Start(ctx context.Context) error {
	log.Println("⏰ Starting clustering scheduler...")

	if err := s.loadSchedules(ctx); err != nil {
		log.Printf("⚠️ Failed to load clustering schedules: %v", err)
	}

	s.scheduler.Start()
	log.Println("✅ Clustering scheduler started")
	return nil
}

// Stop stops the scheduler.
func (s *SchedulerService) Stop() error {
	log.Println("⏹️ Stopping clustering scheduler...")
	return s.scheduler.Shutdown()
}

func (s *SchedulerService) loadSchedules(ctx context.Context) error {
	collection := s.mongodb.Collection(scheduleCollection)

	cursor, err := collection.Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return fmt.Errorf("failed to query schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var count int
	for cursor.Next(ctx) {
		var schedule models.ClusterSchedule
		if err := cursor.Decode(&schedule); err != nil {
			log.Printf("⚠️ Failed to decode schedule: %v", err)
			continue
		}
		if err := s.registerJob(&schedule); err != nil {
			log.Printf("⚠️ Failed to register schedule for org %s: %v", schedule.OrgID, err)
			continue
		}
		count++
	}

	log.Printf("✅ Loaded %d organization clustering schedules", count)
	return nil
}

func (s *SchedulerService) registerJob(schedule *models.ClusterSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := time.LoadLocation(schedule.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %s: %w", schedule.Timezone, err)
	}

	// Cron expression with timezone prefix (CRON_TZ=Europe/Berlin 0 4 * * *)
	cronWithTZ := fmt.Sprintf("CRON_TZ=%s %s", schedule.Timezone, schedule.CronExpression)

	orgID := schedule.OrgID
	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronWithTZ, false),
		gocron.NewTask(func() {
			s.executeScheduledRun(orgID)
		}),
		gocron.WithName(orgID),
		gocron.WithTags(orgID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.jobs[orgID] = job
	log.Printf("📅 Registered clustering schedule for org %s (cron: %s, tz: %s)",
		orgID, schedule.CronExpression, schedule.Timezone)
	return nil
}

func (s *SchedulerService) unregisterJob(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[orgID]
	if !exists {
		return nil
	}
	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}
	delete(s.jobs, orgID)
	log.Printf("🗑️ Unregistered clustering schedule for org %s", orgID)
	return nil
}

// executeScheduledRun runs clustering for one organization. The
// clustering service already holds a per-org Redis lock, but a
// minute-granularity lock here keeps multiple instances from even
// starting the same scheduled run.
func (s *SchedulerService) executeScheduledRun(orgID string) {
	ctx := context.Background()

	lockKey := fmt.Sprintf("cohort:schedule:lock:%s:%d", orgID, time.Now().Unix()/60)
	acquired, err := s.redis.AcquireLock(ctx, lockKey, s.instanceID, 5*time.Minute)
	if err != nil {
		log.Printf("❌ Failed to acquire schedule lock for org %s: %v", orgID, err)
		return
	}
	if !acquired {
		log.Printf("⏭️ Scheduled run for org %s already handled by another instance", orgID)
		return
	}
	defer func() {
		if _, err := s.redis.ReleaseLock(ctx, lockKey, s.instanceID); err != nil {
			log.Printf("⚠️ Failed to release schedule lock for org %s: %v", orgID, err)
		}
	}()

	log.Printf("▶️ Running scheduled clustering for org %s", orgID)
	_, runErr := s.clustering.RunForOrg(ctx, orgID)
	s.updateScheduleStats(ctx, orgID, runErr == nil)
	if runErr != nil {
		log.Printf("❌ Scheduled clustering failed for org %s: %v", orgID, runErr)
	}
}

// updateScheduleStats records the run and recomputes the next run time.
func (s *SchedulerService) updateScheduleStats(ctx context.Context, orgID string, counted bool) {
	collection := s.mongodb.Collection(scheduleCollection)

	var schedule models.ClusterSchedule
	if err := collection.FindOne(ctx, bson.M{"orgId": orgID}).Decode(&schedule); err != nil {
		log.Printf("⚠️ Failed to load schedule for org %s: %v", orgID, err)
		return
	}

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"lastRunAt": now,
			"updatedAt": now,
		},
	}
	if counted {
		update["$inc"] = bson.M{"totalRuns": 1}
	}

	if nextRun, err := nextCronRun(schedule.CronExpression, schedule.Timezone, now); err == nil {
		update["$set"].(bson.M)["nextRunAt"] = nextRun
	}

	if _, err := collection.UpdateByID(ctx, schedule.ID, update); err != nil {
		log.Printf("⚠️ Failed to update schedule stats for org %s: %v", orgID, err)
	}
}

// UpsertSchedule creates or replaces an organization's clustering
// schedule and re-registers it with the running scheduler.
func (s *SchedulerService) UpsertSchedule(ctx context.Context, orgID string, req *models.CreateClusterScheduleRequest) (*models.ClusterSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(req.CronExpression); err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression: %v", ErrPrecondition, err)
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: invalid timezone: %v", ErrPrecondition, err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	schedule := &models.ClusterSchedule{
		ID:             primitive.NewObjectID(),
		OrgID:          orgID,
		CronExpression: req.CronExpression,
		Timezone:       timezone,
		Enabled:        enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if nextRun, err := nextCronRun(req.CronExpression, timezone, now); err == nil {
		schedule.NextRunAt = &nextRun
	}

	collection := s.mongodb.Collection(scheduleCollection)
	var existing models.ClusterSchedule
	if err := collection.FindOne(ctx, bson.M{"orgId": orgID}).Decode(&existing); err == nil {
		schedule.ID = existing.ID
		schedule.CreatedAt = existing.CreatedAt
		schedule.TotalRuns = existing.TotalRuns
		schedule.LastRunAt = existing.LastRunAt
	} else if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := collection.ReplaceOne(ctx, bson.M{"orgId": orgID}, schedule, opts); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.unregisterJob(orgID)
	if enabled {
		if err := s.registerJob(schedule); err != nil {
			log.Printf("⚠️ Failed to register schedule for org %s: %v", orgID, err)
		}
	}

	log.Printf("✅ Saved clustering schedule for org %s", orgID)
	return schedule, nil
}

// GetSchedule returns an organization's clustering schedule.
func (s *SchedulerService) GetSchedule(ctx context.Context, orgID string) (*models.ClusterSchedule, error) {
	var schedule models.ClusterSchedule
	err := s.mongodb.Collection(scheduleCollection).FindOne(ctx, bson.M{"orgId": orgID}).Decode(&schedule)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: no clustering schedule for org %s", ErrPrecondition, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return &schedule, nil
}

// DeleteSchedule removes an organization's clustering schedule, returning
// the organization to the global nightly sweep.
func (s *SchedulerService) DeleteSchedule(ctx context.Context, orgID string) error {
	s.unregisterJob(orgID)

	result, err := s.mongodb.Collection(scheduleCollection).DeleteOne(ctx, bson.M{"orgId": orgID})
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: no clustering schedule for org %s", ErrPrecondition, orgID)
	}
	log.Printf("🗑️ Deleted clustering schedule for org %s", orgID)
	return nil
}

// nextCronRun computes the next fire time of a standard 5-field cron
// expression in the given timezone.
func nextCronRun(expr, timezone string, after time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return schedule.Next(after.In(loc)), nil
}
