// Package middleware holds the Echo middleware shared by every route:
// panic recovery, request logging, security headers, CSRF protection,
// rate limiting and client IP extraction.
package middleware

import (
	"context"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies request-scoped values (signed-in email, CSRF token)
// from the Echo context into the context templates render with. It is set
// once at startup so this package does not import the plugins.
var LayoutInjector func(echo.Context, context.Context) context.Context

// IsAPI reports whether the request targets the JSON API.
func IsAPI(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// IsSecure reports whether the client reached us over TLS, directly or
// through a proxy that terminated it.
func IsSecure(c echo.Context) bool {
	req := c.Request()
	return req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}

// Render writes a templ component as an HTML response.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}
