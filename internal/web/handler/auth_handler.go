package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/web/auth"
	"github.com/cuongbtq/chickenify/internal/web/dto"
	"github.com/gin-gonic/gin"
)

const invalidCredentials = "Invalid credentials"

// LoginPage handles GET /login
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

// Login handles POST /login
func (h *Handler) Login(c *gin.Context) {
	var form dto.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		h.renderLoginError(c, form.Email)
		return
	}

	email := normalizeEmail(form.Email)
	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			h.logger.Error("Failed to look up user", slog.String("error", err.Error()))
		}
		h.renderLoginError(c, form.Email)
		return
	}

	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, form.Password) {
		h.logger.Info("Login rejected", slog.Int64("user_id", user.ID), slog.Bool("active", user.IsActive))
		h.renderLoginError(c, form.Email)
		return
	}

	if err := h.sessions.SetCookie(c, user.ID); err != nil {
		h.logger.Error("Failed to issue session", slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "Failed to sign in")
		return
	}

	h.logger.Info("User logged in", slog.Int64("user_id", user.ID))
	c.Redirect(http.StatusFound, "/")
}

// Logout handles POST /logout
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.ClearCookie(c)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) renderLoginError(c *gin.Context, email string) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Error": invalidCredentials,
		"Email": email,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
