package handlers

import (
	"context"
	"log"
	"time"

	"cohort/internal/services"

	"github.com/gofiber/fiber/v2"
)

// backgroundTrackTimeout bounds the detached behavior writes so they
// never hang forever after the request finished.
const backgroundTrackTimeout = 10 * time.Second

// ProfileHandler handles profile and member-interaction requests.
type ProfileHandler struct {
	profileService  *services.ProfileService
	behaviorService *services.BehaviorService
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profileService *services.ProfileService, behaviorService *services.BehaviorService) *ProfileHandler {
	return &ProfileHandler{
		profileService:  profileService,
		behaviorService: behaviorService,
	}
}

// Get returns the caller's profile
// GET /api/profile
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	userID, _, ok := requireUser(c)
	if !ok {
		return nil
	}

	profile, err := h.profileService.Get(c.Context(), userID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	return c.JSON(profile)
}

// Update creates or updates the caller's profile. Identity edits
// regenerate the embedding before the response is sent, so the caller
// sees matching reflect their edit immediately.
// PUT /api/profile
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req services.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	profile, err := h.profileService.Upsert(c.Context(), userID, orgID, &req)
	if err != nil {
		log.Printf("❌ [PROFILE] Update failed for user %s: %v", userID, err)
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to update profile",
		})
	}
	return c.JSON(profile)
}

// Save records that the caller saved another member's profile. The
// behavior write runs off the request path; a save must never slow down
// or fail the interaction that caused it.
// POST /api/members/:id/save
func (h *ProfileHandler) Save(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	savedUserID := c.Params("id")
	if savedUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Member ID is required",
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTrackTimeout)
		defer cancel()
		if err := h.behaviorService.TrackSave(ctx, userID, orgID, savedUserID); err != nil {
			log.Printf("⚠️ [PROFILE] Failed to track save by user %s: %v", userID, err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

// View records that the caller viewed another member's profile.
// POST /api/members/:id/view
func (h *ProfileHandler) View(c *fiber.Ctx) error {
	userID, orgID, ok := requireUser(c)
	if !ok {
		return nil
	}

	if c.Params("id") == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Member ID is required",
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTrackTimeout)
		defer cancel()
		if err := h.behaviorService.TrackView(ctx, userID, orgID); err != nil {
			log.Printf("⚠️ [PROFILE] Failed to track view by user %s: %v", userID, err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}
