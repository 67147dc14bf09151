package handlers

import (
	"context"
	"log"
	"strings"

	"cohort/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SimilarityHandler serves member similarity lookups and text search.
type SimilarityHandler struct {
	similarityService *services.SimilarityService
	behaviorService   *services.BehaviorService
}

// NewSimilarityHandler creates a new similarity handler.
func NewSimilarityHandler(similarityService *services.SimilarityService, behaviorService *services.BehaviorService) *SimilarityHandler {
	return &SimilarityHandler{
		similarityService: similarityService,
		behaviorService:   behaviorService,
	}
}

// Similar returns members closest to the caller's adaptive embedding.
// GET /api/members/similar
func (h *SimilarityHandler) Similar(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	matches, err := h.similarityService.SimilarMembers(c.Context(), userID, orgID)
	if err != nil {
		log.Printf("❌ [SIMILARITY] Similar members failed for user %s: %v", userID, err)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to find similar members",
		})
	}

	return c.JSON(fiber.Map{
		"matches": matches,
		"count":   len(matches),
	})
}

// Search finds members matching a free-text query. The query is also
// tracked as search behavior off the request path, so the response never
// waits for the behavior write.
// POST /api/members/search
func (h *SimilarityHandler) Search(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	matches, err := h.similarityService.SearchByQuery(c.Context(), userID, orgID, query)
	if err != nil {
		log.Printf("❌ [SIMILARITY] Search failed for user %s: %v", userID, err)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTrackTimeout)
		defer cancel()
		if err := h.behaviorService.TrackSearch(ctx, userID, orgID, query); err != nil {
			log.Printf("⚠️ [SIMILARITY] Failed to track search by user %s: %v", userID, err)
		}
	}()

	return c.JSON(fiber.Map{
		"matches": matches,
		"count":   len(matches),
	})
}
