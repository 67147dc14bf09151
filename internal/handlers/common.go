package handlers

import (
	"errors"

	"cohort/internal/services"

	"github.com/gofiber/fiber/v2"
)

// requireUser pulls the authenticated user and organization out of
// request locals. Returns false after writing the 401 response.
func requireUser(c *fiber.Ctx) (userID, orgID string, ok bool) {
	userID, uok := c.Locals("user_id").(string)
	orgID, ook := c.Locals("org_id").(string)
	if !uok || userID == "" || !ook || orgID == "" {
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
		return "", "", false
	}
	return userID, orgID, true
}

// errorStatus maps service error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrPrecondition):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrDataInsufficiency):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrEmptyResult):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrExternalService):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
