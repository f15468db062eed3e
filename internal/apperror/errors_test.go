package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_Codes(t *testing.T) {
	cases := []struct {
		err     *AppError
		code    int
		errType string
	}{
		{NewNotFound("x"), http.StatusNotFound, TypeNotFound},
		{NewBadRequest("x"), http.StatusBadRequest, TypeBadRequest},
		{NewUnauthorized("x"), http.StatusUnauthorized, TypeUnauthorized},
		{NewConflict("x"), http.StatusConflict, TypeConflict},
		{NewPrecondition("x"), http.StatusConflict, TypePrecondition},
		{NewValidation("x"), http.StatusUnprocessableEntity, TypeValidation},
		{NewVerificationFailed("x"), http.StatusUnauthorized, TypeVerificationFailed},
		{NewLocked("x"), http.StatusLocked, TypeLocked},
		{NewInternal(errors.New("boom")), http.StatusInternalServerError, TypeInternal},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: expected code %d, got %d", tc.errType, tc.code, tc.err.Code)
		}
		if tc.err.Type != tc.errType {
			t.Errorf("expected type %s, got %s", tc.errType, tc.err.Type)
		}
	}
}

func TestInternal_UnwrapsCause(t *testing.T) {
	cause := errors.New("redis down")
	err := fmt.Errorf("saving session: %w", NewInternal(cause))

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
	if SafeCode(err) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", SafeCode(err))
	}
	if SafeMessage(err) == cause.Error() {
		t.Error("internal cause must not leak into the safe message")
	}
}

func TestIs_MatchesWrappedType(t *testing.T) {
	err := fmt.Errorf("step up: %w", NewLocked("locked out"))
	if !Is(err, TypeLocked) {
		t.Error("expected Is to match wrapped locked error")
	}
	if Is(err, TypeValidation) {
		t.Error("did not expect validation match")
	}
	if Is(errors.New("plain"), TypeLocked) {
		t.Error("plain errors never match")
	}
}

func TestWithNext_DoesNotMutateOriginal(t *testing.T) {
	base := NewPrecondition("start registration first")
	hinted := base.WithNext("/register")

	if base.Next != "" {
		t.Errorf("expected original untouched, got next=%q", base.Next)
	}
	if hinted.Next != "/register" {
		t.Errorf("expected next=/register, got %q", hinted.Next)
	}
}
