package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tessera/internal/config"
	"github.com/keyxmakerx/tessera/internal/middleware"
	"github.com/keyxmakerx/tessera/internal/plugins/auth"
	"github.com/keyxmakerx/tessera/internal/plugins/biometric"
	"github.com/keyxmakerx/tessera/internal/plugins/security"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
	"github.com/keyxmakerx/tessera/internal/templates/layouts"
	"github.com/keyxmakerx/tessera/internal/templates/pages"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes builds the plugin services and mounts every route. This is
// the single place where routes are aggregated.
func (a *App) RegisterRoutes() error {
	e := a.Echo

	// --- Plugins ---

	userRepo, securityRepo := a.repositories()
	userSvc := users.NewUserService(userRepo)
	securitySvc := security.NewSecurityService(securityRepo)

	ceremony, err := biometric.NewCeremony(a.Config.WebAuthn)
	if err != nil {
		return fmt.Errorf("configuring webauthn: %w", err)
	}

	sessions := auth.NewSessionStore(a.Redis, a.Config.Auth.FlowTTL, a.Config.Auth.SessionTTL)
	authSvc := auth.NewAuthService(userSvc, ceremony, sessions)
	authHandler := auth.NewHandler(authSvc, securitySvc, a.Config.Auth.SessionTTL)

	// Templates read the signed-in email and CSRF token from the render context.
	middleware.LayoutInjector = func(c echo.Context, ctx context.Context) context.Context {
		ctx = layouts.WithUserEmail(ctx, auth.GetEmail(c))
		return layouts.WithCSRFToken(ctx, middleware.GetCSRFToken(c))
	}

	// --- Public Routes ---

	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Home())
	})
	e.GET("/healthz", a.health)

	auth.RegisterRoutes(e, authHandler, sessions, a.Redis)
	return nil
}

// repositories picks the user and event stores for the configured driver.
// MariaDB and SQLite share the SQL repositories.
func (a *App) repositories() (users.UserRepository, security.SecurityEventRepository) {
	if a.Config.Store.Driver == config.StoreMemory || a.DB == nil {
		return users.NewMemoryRepository(), security.NewMemoryRepository()
	}
	return users.NewUserRepository(a.DB), security.NewSecurityEventRepository(a.DB)
}

// health reports whether the SQL store and Redis answer a ping.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"redis": "ok"}
	status := http.StatusOK

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if a.DB != nil {
		checks["database"] = "ok"
		if err := a.DB.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	checks["status"] = "ok"
	if status != http.StatusOK {
		checks["status"] = "degraded"
	}
	return c.JSON(status, checks)
}
