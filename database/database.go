package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"autoapply/config"
)

// Connect opens a Postgres connection from config and verifies it with a ping.
func Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	return db, nil
}

// Migrate creates the tables the engine needs if they do not exist yet.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id SERIAL PRIMARY KEY,
			external_id TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			company TEXT NOT NULL,
			apply_url TEXT NOT NULL,
			location TEXT DEFAULT '',
			description TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'NEW',
			status_detail TEXT DEFAULT '',
			attempts INT NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE TABLE IF NOT EXISTS question_responses (
			id SERIAL PRIMARY KEY,
			question_hash TEXT NOT NULL,
			field_type TEXT NOT NULL,
			question_text TEXT NOT NULL,
			answer TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			reuse_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (question_hash, field_type)
		)`,
		`CREATE TABLE IF NOT EXISTS application_attempts (
			id SERIAL PRIMARY KEY,
			attempt_id TEXT UNIQUE NOT NULL,
			job_external_id TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT DEFAULT '',
			pages_visited INT NOT NULL DEFAULT 0,
			screenshot_url TEXT DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS api_users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %v", err)
		}
	}
	return nil
}
