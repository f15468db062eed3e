package layouts

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		t.Fatalf("render: %v", err)
	}
	return b.String()
}

func TestBase_AnonymousHasNoLogout(t *testing.T) {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>hello</p>")
		return err
	})

	out := render(t, context.Background(), Base("Home", body))

	if !strings.Contains(out, "<title>Home · Tessera</title>") {
		t.Errorf("missing title: %s", out)
	}
	if !strings.Contains(out, "<p>hello</p>") {
		t.Error("body not rendered")
	}
	if strings.Contains(out, `action="/logout"`) {
		t.Error("anonymous page should not offer logout")
	}
}

func TestBase_EscapesUserEmail(t *testing.T) {
	ctx := WithUserEmail(context.Background(), `<script>@example.com`)
	ctx = WithCSRFToken(ctx, "tok")

	out := render(t, ctx, Base("Dashboard", templ.NopComponent))

	if strings.Contains(out, "<script>@") {
		t.Error("email must be escaped")
	}
	if !strings.Contains(out, `value="tok"`) {
		t.Error("logout form should carry the CSRF token")
	}
}
