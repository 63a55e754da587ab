package controllers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autoapply/models"
	"autoapply/utils"
)

type JobController struct {
	jobs *models.JobModel
}

func NewJobController(db *sql.DB) *JobController {
	return &JobController{jobs: models.NewJobModel(db)}
}

type createJobRequest struct {
	ExternalID  string `json:"external_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Company     string `json:"company" binding:"required"`
	ApplyURL    string `json:"apply_url" binding:"required,url"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// Create upserts a job into the queue.
func (jc *JobController) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestError(c, "Invalid job payload", err)
		return
	}

	job, err := jc.jobs.Upsert(req.ExternalID, req.Title, req.Company, req.ApplyURL,
		req.Location, req.Description)
	if err != nil {
		utils.InternalServerError(c, "Failed to store job", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Job stored", job)
}

// List returns jobs filtered by status (default NEW).
func (jc *JobController) List(c *gin.Context) {
	status := c.DefaultQuery("status", models.JobStatusNew)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	jobs, err := jc.jobs.ListByStatus(status, limit)
	if err != nil {
		utils.InternalServerError(c, "Failed to list jobs", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Jobs listed", jobs)
}

// Get returns one job by external id.
func (jc *JobController) Get(c *gin.Context) {
	job, err := jc.jobs.GetByExternalID(c.Param("external_id"))
	if err == sql.ErrNoRows {
		utils.NotFoundError(c, "Job not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to load job", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Job found", job)
}
