// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (SQL pool, Redis client, Echo instance)
// and wires the plugins together.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/config"
	"github.com/keyxmakerx/tessera/internal/middleware"
	"github.com/keyxmakerx/tessera/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the SQL pool backing user records and security events. Nil
	// when the memory store driver is selected.
	DB *sql.DB

	// Redis holds flow sessions and rate limit counters.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// We log our own startup line.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() feeds rate limiting and the security event log, so only
	// believe forwarding headers from known proxies.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	// Stylesheet and the browser client for the ceremony and capture steps.
	e.Static("/static", "static")

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())

	// Double-submit cookie on every state-changing request, API included:
	// the flow session rides on a cookie.
	a.Echo.Use(middleware.CSRF())
}

// errorHandler maps domain errors (AppError) to HTTP responses. API
// requests get the JSON envelope with the step to resume from; browser
// requests get an error page, or a redirect home on 401.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := apperror.TypeInternal
	message := "An unexpected error occurred"
	next := ""

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message
		next = appErr.Next

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Echo's own errors: 404 from the router, 405, bind failures.
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			errType = errorTypeForStatus(code)
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	if middleware.IsAPI(c) {
		body := map[string]any{
			"success": false,
			"error":   errType,
			"message": message,
		}
		if next != "" {
			body["next"] = next
		}
		_ = c.JSON(code, body)
		return
	}

	if code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if code == http.StatusLocked {
		_ = c.Redirect(http.StatusSeeOther, "/locked-out")
		return
	}

	_ = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// errorTypeForStatus classifies Echo errors into the AppError vocabulary.
func errorTypeForStatus(code int) string {
	switch code {
	case http.StatusNotFound:
		return apperror.TypeNotFound
	case http.StatusUnauthorized:
		return apperror.TypeUnauthorized
	case http.StatusUnprocessableEntity:
		return apperror.TypeValidation
	case http.StatusInternalServerError:
		return apperror.TypeInternal
	default:
		return apperror.TypeBadRequest
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to access this page."
	case http.StatusForbidden:
		return "The request could not be verified. Reload the page and try again."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "Too many attempts. Wait a minute and try again."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Tessera server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("store", a.Config.Store.Driver),
	)
	return a.Echo.Start(addr)
}
