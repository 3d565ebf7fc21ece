package model

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/chickenify/internal/domain"
)

type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == domain.RoleAdmin
}

type Job struct {
	ID               int64           `db:"id"`
	UserID           int64           `db:"user_id"`
	Status           string          `db:"status"`
	InputFilename    string          `db:"input_filename"`
	InputDurationSec sql.NullFloat64 `db:"input_duration_sec"`
	OutputURL        sql.NullString  `db:"output_s3_url"`
	ErrorMessage     sql.NullString  `db:"error_message"`
	WorkerID         sql.NullString  `db:"worker_id"`
	CreatedAt        time.Time       `db:"created_at"`
	StartedAt        sql.NullTime    `db:"started_at"`
	LastHeartbeatAt  sql.NullTime    `db:"last_heartbeat_at"`
	CompletedAt      sql.NullTime    `db:"completed_at"`
}
