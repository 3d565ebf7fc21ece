package domain

// JobMessage is the queue payload announcing a job ready for dispatch
type JobMessage struct {
	JobID  int64 `json:"job_id"`
	UserID int64 `json:"user_id"`
}
