package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

func TestRecovery_TurnsPanicIntoInternalError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/boom", nil), httptest.NewRecorder())

	h := Recovery()(func(echo.Context) error {
		panic("nil map write")
	})

	err := h(c)
	if !apperror.Is(err, apperror.TypeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRecovery_PassesThroughErrors(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	want := apperror.NewNotFound("nothing here")
	if err := Recovery()(func(echo.Context) error { return want })(c); err != want {
		t.Errorf("got %v, want %v", err, want)
	}
}
