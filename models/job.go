package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Job lifecycle statuses.
const (
	JobStatusNew        = "NEW"
	JobStatusReady      = "READY_TO_APPLY"
	JobStatusApplied    = "APPLIED"
	JobStatusFailed     = "FAILED"
	JobStatusApplyStuck = "APPLY_STUCK"
)

type Job struct {
	ID            int        `json:"id"`
	ExternalID    string     `json:"external_id"`
	Title         string     `json:"title"`
	Company       string     `json:"company"`
	ApplyURL      string     `json:"apply_url"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	StatusDetail  string     `json:"status_detail"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type JobModel struct {
	DB *sql.DB
}

func NewJobModel(db *sql.DB) *JobModel {
	return &JobModel{DB: db}
}

const jobColumns = `id, external_id, title, company, apply_url, location, description,
       status, status_detail, attempts, last_attempt_at, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	job := &Job{}
	var lastAttempt sql.NullTime
	err := row.Scan(
		&job.ID, &job.ExternalID, &job.Title, &job.Company, &job.ApplyURL,
		&job.Location, &job.Description, &job.Status, &job.StatusDetail,
		&job.Attempts, &lastAttempt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAttempt.Valid {
		job.LastAttemptAt = &lastAttempt.Time
	}
	return job, nil
}

// Upsert inserts a job or refreshes its descriptive fields, keyed by external
// id. Status and attempt counters are never overwritten by an upsert.
func (m *JobModel) Upsert(externalID, title, company, applyURL, location, description string) (*Job, error) {
	query := `
		INSERT INTO jobs (external_id, title, company, apply_url, location, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			company = EXCLUDED.company,
			apply_url = EXCLUDED.apply_url,
			location = EXCLUDED.location,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING ` + jobColumns
	return scanJob(m.DB.QueryRow(query, externalID, title, company, applyURL, location, description, JobStatusNew))
}

func (m *JobModel) GetByExternalID(externalID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE external_id = $1`
	return scanJob(m.DB.QueryRow(query, externalID))
}

// ListByStatus returns up to limit jobs in the given status, oldest first.
func (m *JobModel) ListByStatus(status string, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := m.DB.Query(query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var allowedJobTransitions = map[string][]string{
	JobStatusNew:        {JobStatusReady, JobStatusFailed},
	JobStatusReady:      {JobStatusApplied, JobStatusFailed, JobStatusApplyStuck},
	JobStatusApplyStuck: {JobStatusReady, JobStatusFailed},
	JobStatusFailed:     {JobStatusReady},
}

// UpdateStatus moves a job through the lifecycle, rejecting transitions the
// state machine does not allow.
func (m *JobModel) UpdateStatus(externalID, status, detail string) error {
	job, err := m.GetByExternalID(externalID)
	if err != nil {
		return err
	}
	if job.Status != status && !transitionAllowed(job.Status, status) {
		return fmt.Errorf("invalid job status transition %s -> %s for %s", job.Status, status, externalID)
	}

	query := `
		UPDATE jobs
		SET status = $1, status_detail = $2, attempts = attempts + 1,
		    last_attempt_at = NOW(), updated_at = NOW()
		WHERE external_id = $3`
	_, err = m.DB.Exec(query, status, detail, externalID)
	return err
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedJobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
