package router

import (
	"net/http"

	"github.com/cuongbtq/chickenify/internal/web/auth"
	"github.com/cuongbtq/chickenify/internal/web/handler"
	"github.com/cuongbtq/chickenify/shared/ginmw"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware loads the logged-in user, if any, into the context
func SessionMiddleware(sessions *auth.SessionManager, users auth.UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := sessions.CurrentUser(c, users); user != nil {
			c.Set(handler.UserContextKey, user)
			c.Set(ginmw.UserIDKey, user.ID)
		}
		c.Next()
	}
}

// RequireLogin redirects anonymous visitors to the login page
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler.CurrentUser(c) == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireLoginJSON answers 401 for anonymous API calls
func RequireLoginJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler.CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required"})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects everyone but active admins
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handler.CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.String(http.StatusForbidden, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
