package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"cohort/internal/models"
	"cohort/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// graphCacheTTL is short: the graph only changes on clustering runs, but
// a stale graph after an admin-triggered rerun should age out quickly.
const graphCacheTTL = 5 * time.Minute

// ClusterHandler serves cluster browsing, the membership graph, and the
// admin-only run trigger and schedule management.
type ClusterHandler struct {
	clusterStore      *services.ClusterStore
	clusteringService *services.ClusteringService
	schedulerService  *services.SchedulerService
	redisService      *services.RedisService
}

// NewClusterHandler creates a new cluster handler.
func NewClusterHandler(clusterStore *services.ClusterStore, clusteringService *services.ClusteringService, schedulerService *services.SchedulerService, redisService *services.RedisService) *ClusterHandler {
	return &ClusterHandler{
		clusterStore:      clusterStore,
		clusteringService: clusteringService,
		schedulerService:  schedulerService,
		redisService:      redisService,
	}
}

// List returns the caller organization's current clusters.
// GET /api/clusters
func (h *ClusterHandler) List(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	clusters, err := h.clusterStore.ClustersByOrg(c.Context(), orgID)
	if err != nil {
		log.Printf("❌ [CLUSTER] Failed to list clusters for org %s: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load clusters",
		})
	}

	return c.JSON(fiber.Map{
		"clusters": clusters,
		"count":    len(clusters),
	})
}

// Members returns one cluster's memberships.
// GET /api/clusters/:id/members
func (h *ClusterHandler) Members(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	clusterID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid cluster ID",
		})
	}

	members, err := h.clusterStore.Members(c.Context(), clusterID)
	if err != nil {
		if errors.Is(err, services.ErrEmptyResult) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Cluster not found",
			})
		}
		log.Printf("❌ [CLUSTER] Failed to load members of cluster %s: %v", clusterID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load cluster members",
		})
	}

	// Memberships are org-scoped; refuse cross-org reads.
	for _, m := range members {
		if m.OrgID != orgID {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Cluster not found",
			})
		}
	}

	return c.JSON(fiber.Map{
		"members": members,
		"count":   len(members),
	})
}

// Graph returns the shared-membership edges for the organization's
// current clustering generation, cached in Redis.
// GET /api/clusters/graph
func (h *ClusterHandler) Graph(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	cacheKey := services.GraphCacheKey(orgID)
	if h.redisService != nil {
		if cached, err := h.redisService.Get(c.Context(), cacheKey); err == nil && cached != "" {
			var edges []models.GraphEdge
			if err := json.Unmarshal([]byte(cached), &edges); err == nil {
				return c.JSON(fiber.Map{
					"edges":  edges,
					"count":  len(edges),
					"cached": true,
				})
			}
		}
	}

	edges, err := h.clusterStore.GraphEdges(c.Context(), orgID)
	if err != nil {
		log.Printf("❌ [CLUSTER] Failed to build graph for org %s: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build cluster graph",
		})
	}

	if h.redisService != nil {
		if payload, err := json.Marshal(edges); err == nil {
			if err := h.redisService.Set(c.Context(), cacheKey, string(payload), graphCacheTTL); err != nil {
				log.Printf("⚠️ [CLUSTER] Failed to cache graph for org %s: %v", orgID, err)
			}
		}
	}

	return c.JSON(fiber.Map{
		"edges":  edges,
		"count":  len(edges),
		"cached": false,
	})
}

// TriggerRun starts a clustering run for the caller's organization
// immediately. Superadmin only; serialized with scheduled runs by the
// per-org lock inside the clustering service.
// POST /api/admin/clusters/run
func (h *ClusterHandler) TriggerRun(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	log.Printf("🔧 [CLUSTER] Manual clustering run for org %s triggered by %s", orgID, userID)

	run, err := h.clusteringService.RunForOrg(c.Context(), orgID)
	if err != nil {
		log.Printf("❌ [CLUSTER] Manual run failed for org %s: %v", orgID, err)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(run)
}

// UpsertSchedule creates or replaces the organization's clustering
// schedule. Superadmin only.
// PUT /api/admin/clusters/schedule
func (h *ClusterHandler) UpsertSchedule(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if h.schedulerService == nil {
		return scheduleUnavailable(c)
	}

	var req models.CreateClusterScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.CronExpression == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cron_expression is required",
		})
	}

	schedule, err := h.schedulerService.UpsertSchedule(c.Context(), orgID, &req)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(schedule)
}

// GetSchedule returns the organization's clustering schedule.
// GET /api/admin/clusters/schedule
func (h *ClusterHandler) GetSchedule(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	if h.schedulerService == nil {
		return scheduleUnavailable(c)
	}

	schedule, err := h.schedulerService.GetSchedule(c.Context(), orgID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No clustering schedule configured",
		})
	}
	return c.JSON(schedule)
}

// DeleteSchedule removes the organization's clustering schedule.
// DELETE /api/admin/clusters/schedule
func (h *ClusterHandler) DeleteSchedule(c *fiber.Ctx) error {
	_, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	if h.schedulerService == nil {
		return scheduleUnavailable(c)
	}

	if err := h.schedulerService.DeleteSchedule(c.Context(), orgID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No clustering schedule configured",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Per-org schedules need Redis for cross-instance locking; without it the
// nightly sweep still runs.
func scheduleUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Clustering schedules are unavailable without Redis",
	})
}
