// Package pages renders the handful of server-side HTML pages. The
// registration and login steps themselves run against the JSON API.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/tessera/internal/templates/layouts"
)

// Activity is one row of the dashboard's recent activity list.
type Activity struct {
	Label     string
	IPAddress string
	At        time.Time
}

// Home is the landing page.
func Home() templ.Component {
	return layouts.Base("Sign in", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<section id="flow" data-api="/api/v1">`+
				`<h1>Passwordless sign in</h1>`+
				`<p>Tessera signs you in with your fingerprint. If that fails you `+
				`click three secret points on the image, and as a last resort you `+
				`type your recovery passkey and the calibration phrase.</p>`+
				`<form id="login"><label>Email <input type="email" name="email" required></label>`+
				`<button type="submit">Sign in</button></form>`+
				`<form id="register"><label>Email <input type="email" name="email" required></label>`+
				`<button type="submit">Create account</button></form>`+
				`</section><script src="/static/js/tessera.js" defer></script>`)
		return err
	}))
}

// Dashboard greets the signed-in user and lists their recent activity.
func Dashboard(email string, activity []Activity) templ.Component {
	return layouts.Base("Dashboard", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<h1>Welcome, %s</h1><p>You are signed in.</p><h2>Recent activity</h2>`,
			templ.EscapeString(email),
		); err != nil {
			return err
		}

		if len(activity) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No activity yet.</p>`)
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>Event</th><th>When</th><th>IP</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, a := range activity {
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td><time datetime="%s">%s</time></td><td>%s</td></tr>`,
				templ.EscapeString(a.Label),
				a.At.UTC().Format(time.RFC3339),
				a.At.UTC().Format("2006-01-02 15:04 UTC"),
				templ.EscapeString(a.IPAddress),
			); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	}))
}

// LockedOut is shown after the step-up attempts run out.
func LockedOut() templ.Component {
	return layouts.Base("Locked out", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<h1>Too many failed attempts</h1>`+
				`<p>This sign-in attempt has been locked. Start again from the `+
				`<a href="/">sign-in page</a> to retry.</p>`)
		return err
	}))
}

// ErrorPage renders a full error page for browser requests.
func ErrorPage(code int, message string) templ.Component {
	return layouts.Base(http.StatusText(code), templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<h1>%d %s</h1><p>%s</p><p><a href="/">Back to sign in</a></p>`,
			code,
			templ.EscapeString(http.StatusText(code)),
			templ.EscapeString(message),
		)
		return err
	}))
}
