package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/middleware"
)

// contextKeyFlow stores the caller's *FlowSession in the Echo context.
const contextKeyFlow = "auth_flow"

// LoadFlow attaches the caller's FlowSession to the request, starting a new
// one (and setting its cookie) when the cookie is missing or the session
// has expired.
func LoadFlow(store SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			sess, err := store.Get(ctx, getSessionToken(c))
			if errors.Is(err, ErrSessionNotFound) {
				sess, err = store.Create(ctx)
				if err == nil {
					setSessionCookie(c, sess.Token, 0)
				}
			}
			if err != nil {
				return apperror.NewInternal(err)
			}

			c.Set(contextKeyFlow, sess)
			return next(c)
		}
	}
}

// RequireAuth rejects requests whose session has not completed a login.
// It must run after LoadFlow.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := GetFlow(c)
			if sess == nil || !sess.IsAuthenticated {
				return handleUnauthenticated(c)
			}
			return next(c)
		}
	}
}

// handleUnauthenticated answers 401 JSON to API clients and sends browsers
// back to the sign-in page.
func handleUnauthenticated(c echo.Context) error {
	if middleware.IsAPI(c) {
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   apperror.TypeUnauthorized,
			"message": "authentication required",
			"next":    "/",
		})
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// --- Exported getters for other packages ---

// GetFlow returns the session loaded by LoadFlow, or nil.
func GetFlow(c echo.Context) *FlowSession {
	sess, _ := c.Get(contextKeyFlow).(*FlowSession)
	return sess
}

// GetEmail returns the authenticated email, or "" when not signed in.
func GetEmail(c echo.Context) string {
	if sess := GetFlow(c); sess != nil && sess.IsAuthenticated {
		return sess.AuthenticatedEmail
	}
	return ""
}
