// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/router/handler"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	PolicyHandler    *handler.PolicyHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   *middleware.AuthMiddleware
	LoginRateLimiter *middleware.RateLimiter
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	policyHandler    *handler.PolicyHandler
	adminHandler     *handler.AdminHandler
	authMiddleware   *middleware.AuthMiddleware
	loginRateLimiter *middleware.RateLimiter
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:      params.AuthHandler,
		userHandler:      params.UserHandler,
		policyHandler:    params.PolicyHandler,
		adminHandler:     params.AdminHandler,
		authMiddleware:   params.AuthMiddleware,
		loginRateLimiter: params.LoginRateLimiter,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	api := e.Group("/api")

	// Auth routes; the session credential travels in the cookie
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login, r.loginRateLimiter.Limit)
		authGroup.POST("/refresh-token", r.authHandler.RefreshToken)
		authGroup.POST("/logout", r.authHandler.Logout)
		authGroup.GET("/validate", r.authHandler.ValidateSession)
		authGroup.GET("/me", r.authHandler.Me)
	}

	// User routes that require authentication
	userGroup := api.Group("/user")
	userGroup.Use(r.authMiddleware.Authenticate)
	{
		userGroup.GET("/profile", r.userHandler.GetProfile)
		userGroup.PUT("/profile", r.userHandler.UpdateProfile)
		userGroup.GET("/sessions", r.userHandler.ListSessions)
		userGroup.DELETE("/sessions", r.userHandler.RevokeAllSessions)
		userGroup.DELETE("/sessions/:id", r.userHandler.RevokeSession)
	}

	// Admin routes; the use cases check the actor again
	adminGroup := api.Group("/admin")
	adminGroup.Use(r.authMiddleware.Authenticate)
	adminGroup.Use(r.authMiddleware.Require(usecase.RequireAdmin()))
	{
		tokenConfig := adminGroup.Group("/token-config")
		tokenConfig.GET("", r.policyHandler.GetTokenConfig)
		tokenConfig.PUT("", r.policyHandler.UpdateTokenConfig)
		tokenConfig.POST("/reset", r.policyHandler.ResetTokenConfig)
		tokenConfig.POST("/preset/:preset", r.policyHandler.ApplyPreset)
		tokenConfig.GET("/presets", r.policyHandler.ListPresets)
		tokenConfig.GET("/history", r.policyHandler.History)

		users := adminGroup.Group("/users")
		users.GET("", r.adminHandler.ListUsers)
		users.POST("/create", r.adminHandler.CreateUser)
		users.GET("/:id", r.adminHandler.GetUser)
		users.PUT("/:id/roles", r.adminHandler.SetRoles)
		users.POST("/:id/activate", r.adminHandler.Activate)
		users.POST("/:id/deactivate", r.adminHandler.Deactivate)
	}
}
