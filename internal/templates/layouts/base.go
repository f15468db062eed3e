package layouts

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Base wraps body in the HTML document shell. Signed-in users get a logout
// form in the header.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
				`<meta name="viewport" content="width=device-width, initial-scale=1">`+
				`<title>%s · Tessera</title><link rel="stylesheet" href="/static/css/app.css"></head><body>`+
				`<header><a href="/" class="brand">Tessera</a>`,
			templ.EscapeString(title),
		); err != nil {
			return err
		}

		if email := UserEmail(ctx); email != "" {
			if _, err := fmt.Fprintf(w,
				`<form method="post" action="/logout" class="logout">`+
					`<span>%s</span>`+
					`<input type="hidden" name="csrf_token" value="%s">`+
					`<button type="submit">Log out</button></form>`,
				templ.EscapeString(email),
				templ.EscapeString(CSRFToken(ctx)),
			); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(w, `</header><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}
