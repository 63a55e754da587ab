package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Terminal outcomes of an application attempt.
const (
	ApplySubmitted      = "SUBMITTED"
	ApplyFailed         = "FAILED"
	ApplyNeedsHuman     = "NEEDS_HUMAN"
	ApplyLoginFailed    = "LOGIN_FAILED"
	ApplyNotFound       = "NOT_FOUND"
	ApplyAlreadyApplied = "ALREADY_APPLIED"
	ApplyCaptcha        = "CAPTCHA"
	ApplyBrowserCrash   = "BROWSER_CRASH"
	ApplyStuck          = "STUCK"
	ApplyDryRun         = "DRY_RUN"
	ApplyRunning        = "RUNNING"
)

type ApplicationAttempt struct {
	ID            int        `json:"id"`
	AttemptID     string     `json:"attempt_id"`
	JobExternalID string     `json:"job_external_id"`
	Status        string     `json:"status"`
	Detail        string     `json:"detail"`
	PagesVisited  int        `json:"pages_visited"`
	ScreenshotURL string     `json:"screenshot_url,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type ApplicationAttemptModel struct {
	DB *sql.DB
}

func NewApplicationAttemptModel(db *sql.DB) *ApplicationAttemptModel {
	return &ApplicationAttemptModel{DB: db}
}

// Start records a new in-flight attempt and returns its generated attempt id.
func (m *ApplicationAttemptModel) Start(jobExternalID string) (string, error) {
	attemptID := uuid.NewString()
	_, err := m.DB.Exec(
		`INSERT INTO application_attempts (attempt_id, job_external_id, status) VALUES ($1, $2, $3)`,
		attemptID, jobExternalID, ApplyRunning)
	if err != nil {
		return "", err
	}
	return attemptID, nil
}

// Finish records the terminal outcome of an attempt.
func (m *ApplicationAttemptModel) Finish(attemptID, status, detail string, pagesVisited int, screenshotURL string) error {
	_, err := m.DB.Exec(`
		UPDATE application_attempts
		SET status = $1, detail = $2, pages_visited = $3, screenshot_url = $4, finished_at = NOW()
		WHERE attempt_id = $5`,
		status, detail, pagesVisited, screenshotURL, attemptID)
	return err
}

func (m *ApplicationAttemptModel) GetByAttemptID(attemptID string) (*ApplicationAttempt, error) {
	attempt := &ApplicationAttempt{}
	var finished sql.NullTime
	var screenshot sql.NullString
	err := m.DB.QueryRow(`
		SELECT id, attempt_id, job_external_id, status, detail, pages_visited, screenshot_url, started_at, finished_at
		FROM application_attempts WHERE attempt_id = $1`, attemptID).Scan(
		&attempt.ID, &attempt.AttemptID, &attempt.JobExternalID, &attempt.Status,
		&attempt.Detail, &attempt.PagesVisited, &screenshot, &attempt.StartedAt, &finished,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		attempt.FinishedAt = &finished.Time
	}
	if screenshot.Valid {
		attempt.ScreenshotURL = screenshot.String
	}
	return attempt, nil
}

// ListRecent returns the most recent attempts for a job.
func (m *ApplicationAttemptModel) ListRecent(jobExternalID string, limit int) ([]ApplicationAttempt, error) {
	rows, err := m.DB.Query(`
		SELECT id, attempt_id, job_external_id, status, detail, pages_visited, screenshot_url, started_at, finished_at
		FROM application_attempts WHERE job_external_id = $1
		ORDER BY started_at DESC LIMIT $2`, jobExternalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []ApplicationAttempt{}
	for rows.Next() {
		var attempt ApplicationAttempt
		var finished sql.NullTime
		var screenshot sql.NullString
		if err := rows.Scan(
			&attempt.ID, &attempt.AttemptID, &attempt.JobExternalID, &attempt.Status,
			&attempt.Detail, &attempt.PagesVisited, &screenshot, &attempt.StartedAt, &finished,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			attempt.FinishedAt = &finished.Time
		}
		if screenshot.Valid {
			attempt.ScreenshotURL = screenshot.String
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}
