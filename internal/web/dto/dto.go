package dto

import "time"

type LoginForm struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type CreateUserForm struct {
	Email    string `form:"email" binding:"required,email,max=254"`
	Password string `form:"password" binding:"required,max=72"`
	Role     string `form:"role" binding:"omitempty,oneof=user admin"`
}

type SetActiveForm struct {
	Active string `form:"active" binding:"required,oneof=true false"`
}

type HomeQuery struct {
	Cursor string `form:"cursor"`
	Err    string `form:"err"`
}

type AdminQuery struct {
	Err string `form:"err"`
	OK  string `form:"ok"`
}

// JobStatusResponse is the JSON body of GET /jobs/:id
type JobStatusResponse struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Filename    string     `json:"input_filename,omitempty"`
	OutputURL   string     `json:"output_url,omitempty"`
	DurationSec float64    `json:"duration_sec,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobView is a job row on the home page
type JobView struct {
	ID          int64
	Filename    string
	Status      string
	OutputURL   string
	DurationSec float64
	Error       string
	CreatedAt   time.Time
}
