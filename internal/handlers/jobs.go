package handlers

import (
	"log"

	"cohort/internal/jobs"

	"github.com/gofiber/fiber/v2"
)

// JobsHandler exposes the background job scheduler to superadmins:
// inspecting next run times and firing a job outside its schedule.
type JobsHandler struct {
	scheduler *jobs.JobScheduler
}

func NewJobsHandler(scheduler *jobs.JobScheduler) *JobsHandler {
	return &JobsHandler{scheduler: scheduler}
}

// Status reports every registered job and its next run time.
// GET /api/admin/jobs
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	status := h.scheduler.GetStatus()
	return c.JSON(fiber.Map{
		"jobs":  status,
		"count": len(status),
	})
}

// Run fires a registered job immediately. The job executes in the
// background; failures surface in the logs, not the response.
// POST /api/admin/jobs/:name/run
func (h *JobsHandler) Run(c *fiber.Ctx) error {
	userID, _, ok := requireUser(c)
	if !ok {
		return nil
	}

	name := c.Params("name")
	if _, exists := h.scheduler.GetStatus()[name]; !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown job",
		})
	}

	log.Printf("🔧 [JOBS] Manual run of '%s' requested by %s", name, userID)
	go func() {
		if err := h.scheduler.RunNow(name); err != nil {
			log.Printf("❌ [JOBS] Manual run of '%s' failed: %v", name, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Job started",
		"job":     name,
	})
}
