package auth

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tessera/internal/middleware"
)

// RegisterRoutes mounts the registration and login API, the signed-in
// pages and logout. Every route loads the caller's flow session.
//
// Email submission and factor checks are rate-limited per IP: 10 per minute
// for login and registration, 5 per minute for step-up.
func RegisterRoutes(e *echo.Echo, h *Handler, store SessionStore, rdb *redis.Client) {
	flow := LoadFlow(store)
	authed := RequireAuth()

	loginLimit := middleware.RateLimit(rdb, "login", 10, time.Minute)
	registerLimit := middleware.RateLimit(rdb, "register", 10, time.Minute)
	stepUpLimit := middleware.RateLimit(rdb, "step-up", 5, time.Minute)

	api := e.Group("/api/v1", flow)

	api.POST("/register", h.Register, registerLimit)
	api.GET("/register/biometric/options", h.RegisterBiometricOptions)
	api.POST("/register/biometric", h.RegisterBiometric)
	api.POST("/register/clicks", h.RegisterClicks)
	api.POST("/register/typing", h.RegisterTyping)
	api.GET("/register/complete", h.RegisterComplete)

	api.POST("/login", h.Login, loginLimit)
	api.GET("/login/biometric/options", h.LoginBiometricOptions)
	api.POST("/login/biometric", h.LoginBiometric, loginLimit)
	api.POST("/login/clicks", h.LoginClicks, loginLimit)
	api.GET("/login/step-up", h.StepUpStatus)
	api.POST("/login/step-up", h.StepUp, stepUpLimit)

	api.GET("/me", h.Me, authed)
	api.POST("/me/cadence", h.Cadence, authed)

	e.GET("/dashboard", h.Dashboard, flow, authed)
	e.GET("/locked-out", h.LockedOutPage)
	e.POST("/logout", h.Logout, flow)
}
