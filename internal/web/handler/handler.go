package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/cuongbtq/chickenify/internal/dispatch"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/internal/storage"
	"github.com/cuongbtq/chickenify/internal/web/auth"
	"github.com/cuongbtq/chickenify/shared/objectstore"
	"github.com/cuongbtq/chickenify/shared/statuscache"
	"github.com/gin-gonic/gin"
)

// UserContextKey is where the session middleware stores the current user
const UserContextKey = "current_user"

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
}

type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
}

// InputStore keeps uploaded songs
type InputStore interface {
	Put(ctx context.Context, key string, body io.Reader, opts objectstore.PutOptions) error
}

// Publisher announces queued jobs to the dispatch worker
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// JobRunner renders a job inline or records why it could not be sent
type JobRunner interface {
	Run(ctx context.Context, job *model.Job, audio dispatch.Audio) error
	Fail(ctx context.Context, job *model.Job, reason string) error
}

type StatusReader interface {
	Get(ctx context.Context, jobID int64) (*statuscache.Status, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers.
// Inputs, Publisher and StatusCache are optional depending on the dispatch mode.
type Dependencies struct {
	Logger         *slog.Logger
	Users          UserStore
	Jobs           JobStore
	Sessions       *auth.SessionManager
	Runner         JobRunner
	Inputs         InputStore
	Publisher      Publisher
	StatusCache    StatusReader
	DB             HealthChecker
	DispatchMode   string
	MaxUploadBytes int64
	PageSize       int
	ServiceName    string
}

// Handler serves the web UI
type Handler struct {
	logger         *slog.Logger
	users          UserStore
	jobs           JobStore
	sessions       *auth.SessionManager
	runner         JobRunner
	inputs         InputStore
	publisher      Publisher
	statusCache    StatusReader
	db             HealthChecker
	dispatchMode   string
	maxUploadBytes int64
	pageSize       int
	serviceName    string
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}

	return &Handler{
		logger:         deps.Logger,
		users:          deps.Users,
		jobs:           deps.Jobs,
		sessions:       deps.Sessions,
		runner:         deps.Runner,
		inputs:         deps.Inputs,
		publisher:      deps.Publisher,
		statusCache:    deps.StatusCache,
		db:             deps.DB,
		dispatchMode:   deps.DispatchMode,
		maxUploadBytes: maxUpload,
		pageSize:       pageSize,
		serviceName:    deps.ServiceName,
	}
}

// CurrentUser returns the user loaded by the session middleware, or nil
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(UserContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
