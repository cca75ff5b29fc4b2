package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/db/models"
	"github.com/userpipe/userpipe/internal/services"
)

// JobHandler exposes job trigger and status endpoints
type JobHandler struct {
	jobService *services.Job
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(jobService *services.Job) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// TriggerRequest is the optional body of a trigger call. When JobID is empty
// the server generates one.
type TriggerRequest struct {
	JobID string `json:"job_id"`
}

// TriggerJob creates a job record and starts the process-users pipeline.
// Returns 202 with the pending job; the pipeline runs asynchronously.
func (h *JobHandler) TriggerJob(c *fiber.Ctx) error {
	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
		}
	}

	job, err := h.jobService.Trigger(c.Context(), req.JobID)
	if err != nil {
		if job != nil {
			// Record exists but the first stage could not be enqueued.
			return c.Status(fiber.StatusServiceUnavailable).JSON(Response{
				Slug:  ErrorSlug,
				Error: fmt.Sprintf("job created but pipeline not started: %v", err),
				Data:  job,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(fmt.Sprintf("failed to create job: %v", err)))
	}

	return c.Status(fiber.StatusAccepted).JSON(success(job))
}

// GetJobStatus returns the status record of a specific job
func (h *JobHandler) GetJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("job id is required"))
	}

	job, err := h.jobService.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound(fmt.Sprintf("job %s not found", jobID)))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(fmt.Sprintf("failed to get job: %v", err)))
	}

	return c.JSON(success(job))
}

// ListJobs returns jobs ordered by creation time, optionally filtered by
// status and paginated with limit/offset
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	status, err := models.ParseJobStatus(c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	opts := &models.ListOptions{
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}

	jobs, err := h.jobService.List(c.Context(), status, opts)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(fmt.Sprintf("failed to list jobs: %v", err)))
	}

	return c.JSON(success(jobs))
}
