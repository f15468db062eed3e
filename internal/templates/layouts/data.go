// Package layouts holds the page shell and the typed context values it
// reads. Only plain strings are stored so the package never imports plugin
// types.
//
// Data flow: middleware/handler → Echo context → LayoutInjector → Go context → layout
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyUserEmail ctxKey = "layout_user_email"
	keyCSRFToken ctxKey = "layout_csrf_token"
)

// WithUserEmail stores the signed-in email.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyUserEmail, email)
}

// UserEmail returns the signed-in email, or "" for anonymous visitors.
func UserEmail(ctx context.Context) string {
	email, _ := ctx.Value(keyUserEmail).(string)
	return email
}

// WithCSRFToken stores the request's CSRF token for forms.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// CSRFToken returns the CSRF token, or "".
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(keyCSRFToken).(string)
	return token
}
