package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/internal/web/auth"
	"github.com/cuongbtq/chickenify/internal/web/dto"
	"github.com/gin-gonic/gin"
)

var adminFlashes = map[string]string{
	"exists":  "A user with that email already exists.",
	"invalid": "Please provide a valid email, a password of at most 72 bytes and a known role.",
	"self":    "You cannot deactivate your own account.",
	"missing": "That user no longer exists.",
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(c *gin.Context) {
	var q dto.AdminQuery
	_ = c.ShouldBindQuery(&q)

	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list users", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to list users")
		return
	}

	data := gin.H{
		"User":  CurrentUser(c),
		"Users": users,
		"Error": adminFlashes[q.Err],
	}
	if q.OK == "1" {
		data["Notice"] = "User created."
	}
	c.HTML(http.StatusOK, "admin_users.html", data)
}

// CreateUser handles POST /admin/users
func (h *Handler) CreateUser(c *gin.Context) {
	var form dto.CreateUserForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Info("Invalid create user form", slog.String("error", err.Error()))
		c.Redirect(http.StatusFound, "/admin/users?err=invalid")
		return
	}

	role := form.Role
	if role == "" {
		role = domain.RoleUser
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		h.logger.Info("Rejected password for new user", slog.String("error", err.Error()))
		c.Redirect(http.StatusFound, "/admin/users?err=invalid")
		return
	}

	user := &model.User{
		Email:        normalizeEmail(form.Email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			c.Redirect(http.StatusFound, "/admin/users?err=exists")
			return
		}
		h.logger.Error("Failed to create user", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.logger.Info("Admin created user",
		slog.Int64("admin_id", CurrentUser(c).ID),
		slog.Int64("user_id", user.ID),
		slog.String("role", role),
	)
	c.Redirect(http.StatusFound, "/admin/users?ok=1")
}

// SetUserActive handles POST /admin/users/:id/active
func (h *Handler) SetUserActive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Redirect(http.StatusFound, "/admin/users?err=invalid")
		return
	}

	var form dto.SetActiveForm
	if err := c.ShouldBind(&form); err != nil {
		c.Redirect(http.StatusFound, "/admin/users?err=invalid")
		return
	}
	active := form.Active == "true"

	admin := CurrentUser(c)
	if admin.ID == id && !active {
		c.Redirect(http.StatusFound, "/admin/users?err=self")
		return
	}

	if err := h.users.SetUserActive(c.Request.Context(), id, active); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.Redirect(http.StatusFound, "/admin/users?err=missing")
			return
		}
		h.logger.Error("Failed to update user", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to update user")
		return
	}

	c.Redirect(http.StatusFound, "/admin/users")
}
