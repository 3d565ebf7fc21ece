package router

import (
	"fmt"
	"net/http"

	"github.com/cuongbtq/chickenify/internal/web/assets"
	"github.com/cuongbtq/chickenify/internal/web/handler"
	"github.com/cuongbtq/chickenify/shared/ginmw"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	r := gin.New()

	tmpl, err := assets.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	static, err := assets.Static()
	if err != nil {
		return nil, fmt.Errorf("failed to load static assets: %w", err)
	}

	// Middleware
	r.Use(gin.Recovery())
	r.Use(ginmw.RequestID())
	r.Use(SessionMiddleware(deps.Sessions, deps.Users))
	r.Use(ginmw.Logger(deps.Logger))

	h := handler.NewHandler(deps)

	r.GET("/health", h.Health)
	r.StaticFS("/static", http.FS(static))

	r.GET("/", h.Home)
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	r.POST("/jobs", RequireLogin(), h.CreateJob)
	r.GET("/jobs/:id", RequireLoginJSON(), h.GetJob)

	admin := r.Group("/admin", RequireAdmin())
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.POST("/users/:id/active", h.SetUserActive)
	}

	return r, nil
}
