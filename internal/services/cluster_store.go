package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"cohort/internal/database"
	"cohort/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ClusterStore persists clustering results. A run wholly replaces the
// scope's prior clusters and memberships inside one transaction, so readers
// never observe the empty window between delete and insert. Zero clusters
// is a valid replacement: stale groupings are worse than none.
type ClusterStore struct {
	mongodb     *database.MongoDB
	clusters    *mongo.Collection
	memberships *mongo.Collection
}

// NewClusterStore creates a cluster persistence service.
func NewClusterStore(mongodb *database.MongoDB) *ClusterStore {
	return &ClusterStore{
		mongodb:     mongodb,
		clusters:    mongodb.Collection(database.CollectionClusters),
		memberships: mongodb.Collection(database.CollectionClusterMemberships),
	}
}

// ReplaceScope deletes the scope's existing clusters and memberships and
// inserts the new generation. labels must align with result.Clusters.
func (s *ClusterStore) ReplaceScope(ctx context.Context, orgID, runID string, result *EngineResult, labels []string, keywordsStored int) error {
	if len(labels) != len(result.Clusters) {
		return fmt.Errorf("label count %d does not match cluster count %d", len(labels), len(result.Clusters))
	}

	now := time.Now()
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.clusters.DeleteMany(sessCtx, bson.M{"orgId": orgID}); err != nil {
			return fmt.Errorf("failed to delete prior clusters: %w", err)
		}
		if _, err := s.memberships.DeleteMany(sessCtx, bson.M{"orgId": orgID}); err != nil {
			return fmt.Errorf("failed to delete prior memberships: %w", err)
		}

		if len(result.Clusters) == 0 {
			return nil
		}

		clusterDocs := make([]interface{}, len(result.Clusters))
		clusterIDs := make([]primitive.ObjectID, len(result.Clusters))
		for i, c := range result.Clusters {
			keywords := c.Keywords
			if len(keywords) > keywordsStored {
				keywords = keywords[:keywordsStored]
			}
			id := primitive.NewObjectID()
			clusterIDs[i] = id
			clusterDocs[i] = models.Cluster{
				ID:          id,
				OrgID:       orgID,
				Label:       labels[i],
				Keywords:    keywords,
				MemberCount: len(c.Members),
				Silhouette:  result.Silhouette,
				RunID:       runID,
				CreatedAt:   now,
			}
		}
		if _, err := s.clusters.InsertMany(sessCtx, clusterDocs); err != nil {
			return fmt.Errorf("failed to insert clusters: %w", err)
		}

		var membershipDocs []interface{}
		for i, c := range result.Clusters {
			for _, m := range c.Members {
				membershipDocs = append(membershipDocs, models.ClusterMembership{
					ID:               primitive.NewObjectID(),
					ClusterID:        clusterIDs[i],
					OrgID:            orgID,
					UserID:           m.UserID,
					CentroidDistance: m.CentroidDistance,
					RunID:            runID,
					CreatedAt:        now,
				})
			}
		}
		if _, err := s.memberships.InsertMany(sessCtx, membershipDocs); err != nil {
			return fmt.Errorf("failed to insert memberships: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("💾 [CLUSTER-STORE] Replaced scope %s: %d clusters, run %s", orgID, len(result.Clusters), runID)
	return nil
}

// ClustersByOrg returns the current clusters for an organization.
func (s *ClusterStore) ClustersByOrg(ctx context.Context, orgID string) ([]models.Cluster, error) {
	cursor, err := s.clusters.Find(ctx, bson.M{"orgId": orgID})
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer cursor.Close(ctx)

	var clusters []models.Cluster
	if err := cursor.All(ctx, &clusters); err != nil {
		return nil, fmt.Errorf("failed to decode clusters: %w", err)
	}
	return clusters, nil
}

// Members returns the memberships of one cluster.
func (s *ClusterStore) Members(ctx context.Context, clusterID primitive.ObjectID) ([]models.ClusterMembership, error) {
	cursor, err := s.memberships.Find(ctx, bson.M{"clusterId": clusterID})
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer cursor.Close(ctx)

	var members []models.ClusterMembership
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	if len(members) == 0 {
		// Every stored cluster has at least the minimum member count, so
		// an empty read means the cluster is not part of the current
		// generation.
		return nil, fmt.Errorf("%w: cluster %s not in current generation", ErrEmptyResult, clusterID.Hex())
	}
	return members, nil
}

// GraphEdges derives shared-membership edges for the visualization layer:
// every unordered user pair within each cluster becomes one edge.
func (s *ClusterStore) GraphEdges(ctx context.Context, orgID string) ([]models.GraphEdge, error) {
	cursor, err := s.memberships.Find(ctx, bson.M{"orgId": orgID})
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer cursor.Close(ctx)

	byCluster := make(map[primitive.ObjectID][]string)
	for cursor.Next(ctx) {
		var m models.ClusterMembership
		if err := cursor.Decode(&m); err != nil {
			continue
		}
		byCluster[m.ClusterID] = append(byCluster[m.ClusterID], m.UserID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	var edges []models.GraphEdge
	for clusterID, users := range byCluster {
		for i := 0; i < len(users); i++ {
			for j := i + 1; j < len(users); j++ {
				edges = append(edges, models.GraphEdge{
					ClusterID:    clusterID,
					SourceUserID: users[i],
					TargetUserID: users[j],
				})
			}
		}
	}
	return edges, nil
}
