package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestCSRF_SafeMethodIssuesCookie(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != csrfCookieName {
		t.Fatalf("expected a %s cookie, got %v", csrfCookieName, cookies)
	}
	if cookies[0].HttpOnly {
		t.Error("CSRF cookie must be readable by the page")
	}
	if GetCSRFToken(c) != cookies[0].Value {
		t.Error("context token should match the cookie")
	}
}

func TestCSRF_APIPostWithoutTokenRejected(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := CSRF()(okHandler)(c)

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestCSRF_MatchingHeaderAccepted(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	req.Header.Set(csrfHeaderName, "abc")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCSRF_MismatchedFormFieldRejected(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader("csrf_token=zzz"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF()(okHandler)(c); err == nil {
		t.Fatal("expected mismatched token to be rejected")
	}
}
