package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema holds the idempotent DDL applied at startup
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id                 BIGSERIAL PRIMARY KEY,
		user_id            BIGINT NOT NULL REFERENCES users(id),
		status             TEXT NOT NULL DEFAULT 'queued',
		input_filename     TEXT NOT NULL,
		input_duration_sec DOUBLE PRECISION,
		output_s3_url      TEXT,
		error_message      TEXT,
		worker_id          TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at         TIMESTAMPTZ,
		last_heartbeat_at  TIMESTAMPTZ,
		completed_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs (user_id, created_at DESC, id DESC)`,
}

// DefaultClaimStaleAfter is how long a claim survives without heartbeats
const DefaultClaimStaleAfter = 5 * time.Minute

const (
	uniqueViolation = "23505"

	userColumns = `id, email, password_hash, role, is_active, created_at`
	jobColumns  = `id, user_id, status, input_filename, input_duration_sec, output_s3_url,
		error_message, worker_id, created_at, started_at, last_heartbeat_at, completed_at`
)

// Storage handles all database operations for users and jobs
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateUser inserts a user and fills in its id and creation time
func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, user.Email, user.PasswordHash, user.Role, user.IsActive).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created",
		slog.Int64("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return nil
}

// GetUserByEmail retrieves a user by email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	if err := s.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by id
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListUsers returns all users, newest first
func (s *Storage) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id DESC`

	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetUserActive enables or disables a user account
func (s *Storage) SetUserActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	s.logger.Info("User active flag updated",
		slog.Int64("user_id", id),
		slog.Bool("active", active),
	)
	return nil
}

// CreateJob inserts a queued job and fills in its id and creation time
func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (user_id, status, input_filename)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	job.Status = domain.JobStatusQueued
	err := s.db.QueryRowContext(ctx, query, job.UserID, job.Status, job.InputFilename).
		Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by id
func (s *Storage) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// JobFilter narrows ListJobs; zero values match everything
type JobFilter struct {
	UserID   int64
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last row of a page in (created_at, id) order
type JobCursor struct {
	CreatedAt time.Time
	ID        int64
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell
// whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != 0 {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob marks a queued job as taken by workerID. A job is claimable when
// no worker holds it or its holder's heartbeat is older than staleAfter.
func (s *Storage) ClaimJob(ctx context.Context, id int64, workerID string, staleAfter time.Duration) (*model.Job, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultClaimStaleAfter
	}

	query := `
		UPDATE jobs
		SET worker_id = $1,
		    started_at = NOW(),
		    last_heartbeat_at = NOW()
		WHERE id = $2
		  AND status = $3
		  AND (worker_id IS NULL OR last_heartbeat_at < NOW() - make_interval(secs => $4))
		RETURNING ` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query, workerID, id, domain.JobStatusQueued, staleAfter.Seconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.Int64("job_id", id),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.Int64("job_id", id),
		slog.String("worker_id", workerID),
	)
	return &job, nil
}

// ReleaseJob gives a still-queued job back so a redelivered message can claim it
func (s *Storage) ReleaseJob(ctx context.Context, id int64, workerID string) error {
	query := `
		UPDATE jobs
		SET worker_id = NULL,
		    started_at = NULL,
		    last_heartbeat_at = NULL
		WHERE id = $1 AND status = $2 AND worker_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, id, domain.JobStatusQueued, workerID); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// UpdateJobHeartbeat refreshes last_heartbeat_at while workerID still holds the
// claim. It returns ErrJobAlreadyClaimed once the job finished or another worker
// took it over.
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, id int64, workerID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW()
		WHERE id = $1 AND status = $2 AND worker_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, id, domain.JobStatusQueued, workerID)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrJobAlreadyClaimed
	}
	return nil
}

// CompleteJob records a successful render. workerID must match the job's
// claim; an empty workerID only finishes an unclaimed job.
func (s *Storage) CompleteJob(ctx context.Context, id int64, workerID, outputURL string, durationSec float64) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    output_s3_url = $2,
		    input_duration_sec = $3,
		    error_message = NULL,
		    completed_at = NOW()
		WHERE id = $4 AND status = $5 AND worker_id IS NOT DISTINCT FROM NULLIF($6, '')
	`

	return s.finishJob(ctx, id, domain.JobStatusDone, query,
		domain.JobStatusDone, outputURL, durationSec, id, domain.JobStatusQueued, workerID)
}

// FailJob records a failed render with its error message, under the same
// claim rule as CompleteJob
func (s *Storage) FailJob(ctx context.Context, id int64, workerID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW()
		WHERE id = $3 AND status = $4 AND worker_id IS NOT DISTINCT FROM NULLIF($5, '')
	`

	return s.finishJob(ctx, id, domain.JobStatusError, query,
		domain.JobStatusError, errorMsg, id, domain.JobStatusQueued, workerID)
}

func (s *Storage) finishJob(ctx context.Context, id int64, status, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if job.Status == domain.JobStatusQueued {
			return domain.ErrJobAlreadyClaimed
		}
		return domain.ErrJobFinished
	}

	s.logger.Info("Job status updated",
		slog.Int64("job_id", id),
		slog.String("status", status),
	)
	return nil
}
