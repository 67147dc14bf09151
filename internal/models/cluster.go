package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cluster is a discovered sub-community within an organization. Clusters
// are wholly replaced on each clustering run; RunID marks the generation
// that produced them so readers and the graph cache can tell runs apart.
type Cluster struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID string             `bson:"orgId" json:"org_id"`

	Label    string   `bson:"label" json:"label"`
	Keywords []string `bson:"keywords" json:"keywords"`

	MemberCount int     `bson:"memberCount" json:"member_count"`
	Silhouette  float64 `bson:"silhouette" json:"silhouette"`

	// RunID is the generation marker for the clustering run.
	RunID string `bson:"runId" json:"run_id"`

	// Hierarchy fields reserved for future nesting. The engine only
	// produces a flat partition today: ParentID is always nil, Depth 0.
	ParentID *primitive.ObjectID `bson:"parentId,omitempty" json:"parent_id,omitempty"`
	Depth    int                 `bson:"depth" json:"depth"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// ClusterMembership joins a cluster to a member's user. Structurally
// many-to-many, but the engine assigns each user to at most one cluster
// per run.
type ClusterMembership struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClusterID primitive.ObjectID `bson:"clusterId" json:"cluster_id"`
	OrgID     string             `bson:"orgId" json:"org_id"`
	UserID    string             `bson:"userId" json:"user_id"`

	// CentroidDistance is the member's Euclidean distance to its cluster
	// centroid at assignment time, recorded for diagnostics.
	CentroidDistance float64 `bson:"centroidDistance" json:"centroid_distance"`

	RunID     string    `bson:"runId" json:"run_id"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// ClusterRun summarizes one clustering run for an organization.
type ClusterRun struct {
	RunID        string    `json:"run_id"`
	OrgID        string    `json:"org_id"`
	K            int       `json:"k"`
	Silhouette   float64   `json:"silhouette"`
	ClusterCount int       `json:"cluster_count"`
	MemberCount  int       `json:"member_count"`
	EligibleSize int       `json:"eligible_size"`
	StartedAt    time.Time `json:"started_at"`
	Duration     string    `json:"duration"`
}

// GraphEdge is a shared-membership edge for the visualization layer: two
// users connected because they belong to the same cluster.
type GraphEdge struct {
	ClusterID    primitive.ObjectID `json:"cluster_id"`
	SourceUserID string             `json:"source_user_id"`
	TargetUserID string             `json:"target_user_id"`
}
