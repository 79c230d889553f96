package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireBearerAllowsWhenTokenEmpty(t *testing.T) {
	called := false
	h := requireBearer("", func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if !called {
		t.Error("expected wrapped handler to run when no token is configured")
	}
}

func TestRequireBearerRejectsMissingOrWrongToken(t *testing.T) {
	called := false
	h := requireBearer("secret", func(w http.ResponseWriter, r *http.Request) { called = true })

	cases := []string{"", "Bearer wrong", "Basic secret"}
	for _, header := range cases {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h(w, req)

		if called {
			t.Errorf("expected handler not to run for header %q", header)
		}
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for header %q, got %d", header, w.Code)
		}
	}
}

func TestRequireBearerAllowsCorrectToken(t *testing.T) {
	called := false
	h := requireBearer("secret", func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h(w, req)

	if !called {
		t.Error("expected wrapped handler to run with correct bearer token")
	}
	if w.Code != http.StatusOK && w.Code != 0 {
		t.Errorf("unexpected status %d", w.Code)
	}
}
