package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClusterSchedule is a per-organization override of the global nightly
// clustering sweep. Organizations without one are covered by the sweep.
type ClusterSchedule struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID string             `bson:"orgId" json:"org_id"`

	CronExpression string `bson:"cronExpression" json:"cron_expression"`
	Timezone       string `bson:"timezone" json:"timezone"`
	Enabled        bool   `bson:"enabled" json:"enabled"`

	LastRunAt *time.Time `bson:"lastRunAt,omitempty" json:"last_run_at,omitempty"`
	NextRunAt *time.Time `bson:"nextRunAt,omitempty" json:"next_run_at,omitempty"`
	TotalRuns int64      `bson:"totalRuns" json:"total_runs"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// CreateClusterScheduleRequest is the payload for creating or replacing
// an organization's clustering schedule.
type CreateClusterScheduleRequest struct {
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	Enabled        *bool  `json:"enabled,omitempty"`
}
