package controllers

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoapply/models"
	"autoapply/services"
	"autoapply/utils"
)

// ApplicationController triggers application attempts and reports on them.
// Attempts run in the background; the trigger endpoint returns the attempt id
// immediately.
type ApplicationController struct {
	jobs         *models.JobModel
	attempts     *models.ApplicationAttemptModel
	orchestrator *services.BatchOrchestrator
}

func NewApplicationController(db *sql.DB, orchestrator *services.BatchOrchestrator) *ApplicationController {
	return &ApplicationController{
		jobs:         models.NewJobModel(db),
		attempts:     models.NewApplicationAttemptModel(db),
		orchestrator: orchestrator,
	}
}

type applyRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
}

// Apply starts an application attempt for one job.
func (ac *ApplicationController) Apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestError(c, "Invalid apply payload", err)
		return
	}

	job, err := ac.jobs.GetByExternalID(req.ExternalID)
	if err == sql.ErrNoRows {
		utils.NotFoundError(c, "Job not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to load job", err)
		return
	}
	if job.Status != models.JobStatusReady && job.Status != models.JobStatusNew {
		utils.BadRequestError(c, "Job is not in an applyable state", nil)
		return
	}
	if job.Status == models.JobStatusNew {
		if err := ac.jobs.UpdateStatus(job.ExternalID, models.JobStatusReady, "promoted via API"); err != nil {
			utils.InternalServerError(c, "Failed to promote job", err)
			return
		}
	}

	attemptID, err := ac.attempts.Start(job.ExternalID)
	if err != nil {
		utils.InternalServerError(c, "Failed to record attempt", err)
		return
	}

	go ac.runAttempt(attemptID, job)

	utils.SuccessResponse(c, http.StatusAccepted, "Attempt started", gin.H{
		"attempt_id": attemptID,
	})
}

func (ac *ApplicationController) runAttempt(attemptID string, job *models.Job) {
	ctx := context.Background()
	if ac.orchestrator.Automation.ApplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ac.orchestrator.Automation.ApplyTimeout)
		defer cancel()
	}

	outcome := ac.orchestrator.ApplyJob(ctx, job)
	if err := ac.attempts.Finish(attemptID, outcome.Status, outcome.Detail,
		outcome.PagesVisited, outcome.ScreenshotURL); err != nil {
		log.Printf("Failed to finish attempt %s: %v", attemptID, err)
	}
}

// GetAttempt returns one attempt by id.
func (ac *ApplicationController) GetAttempt(c *gin.Context) {
	attempt, err := ac.attempts.GetByAttemptID(c.Param("attempt_id"))
	if err == sql.ErrNoRows {
		utils.NotFoundError(c, "Attempt not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to load attempt", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Attempt found", attempt)
}

// ListAttempts returns recent attempts for a job.
func (ac *ApplicationController) ListAttempts(c *gin.Context) {
	attempts, err := ac.attempts.ListRecent(c.Param("external_id"), 20)
	if err != nil {
		utils.InternalServerError(c, "Failed to list attempts", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Attempts listed", attempts)
}
