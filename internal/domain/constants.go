package domain

import "fmt"

// Job status constants
const (
	JobStatusQueued = "queued"
	JobStatusDone   = "done"
	JobStatusError  = "error"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Dispatch modes
const (
	DispatchModeSync  = "sync"
	DispatchModeQueue = "queue"
)

// Accepted upload content types
var AudioContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/wav":   true,
	"audio/x-wav": true,
}

// ValidRole reports whether role is a known role
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// IsTerminal reports whether a job in status can no longer change
func IsTerminal(status string) bool {
	return status == JobStatusDone || status == JobStatusError
}

// InputKey is the object key of a job's uploaded song
func InputKey(userID, jobID int64) string {
	return fmt.Sprintf("inputs/%d/%d.wav", userID, jobID)
}

// OutputKey is the object key of a job's rendered song
func OutputKey(userID, jobID int64) string {
	return fmt.Sprintf("outputs/%d/%d.wav", userID, jobID)
}
