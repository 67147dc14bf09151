package jobs

import (
	"context"
	"log"
	"time"

	"cohort/internal/services"

	"github.com/robfig/cron/v3"
)

// ClusteringSweepJob runs the global nightly clustering sweep: every
// organization with opted-in profiles is re-clustered. Organizations with
// their own schedule are still included; the per-org Redis lock keeps the
// two triggers from overlapping.
type ClusteringSweepJob struct {
	clustering *services.ClusteringService
	schedule   cron.Schedule
	cronSpec   string
}

// NewClusteringSweepJob creates the sweep job from a standard 5-field
// cron spec. An unparseable spec falls back to 03:00 UTC daily.
func NewClusteringSweepJob(clustering *services.ClusteringService, cronSpec string) *ClusteringSweepJob {
	schedule, err := cron.ParseStandard(cronSpec)
	if err != nil {
		log.Printf("⚠️ [CLUSTER-SWEEP] Invalid cron spec %q, using default '0 3 * * *': %v", cronSpec, err)
		cronSpec = "0 3 * * *"
		schedule, _ = cron.ParseStandard(cronSpec)
	}
	return &ClusteringSweepJob{
		clustering: clustering,
		schedule:   schedule,
		cronSpec:   cronSpec,
	}
}

// Run executes the sweep.
func (j *ClusteringSweepJob) Run(ctx context.Context) error {
	return j.clustering.RunAll(ctx)
}

// GetNextRunTime returns the next scheduled sweep time.
func (j *ClusteringSweepJob) GetNextRunTime() time.Time {
	return j.schedule.Next(time.Now())
}
