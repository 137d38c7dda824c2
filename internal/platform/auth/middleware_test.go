package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func doRequest(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser string
	handler := func(c echo.Context) error {
		gotUser = UserID(c)
		return c.NoContent(http.StatusOK)
	}
	err := mw(handler)(c)
	if err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			rec.Code = httpErr.Code
		}
	}
	return rec, gotUser
}

func TestMiddleware_ValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "patient-7", []string{"patient"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec, user := doRequest(t, Middleware(Config{Secret: testSecret}), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if user != "patient-7" {
		t.Errorf("expected subject patient-7, got %q", user)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	rec, _ := doRequest(t, Middleware(Config{Secret: testSecret}), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("other-secret"), "patient-7", nil, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec, _ := doRequest(t, Middleware(Config{Secret: testSecret}), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, "patient-7", nil, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec, _ := doRequest(t, Middleware(Config{Secret: testSecret}), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDevMiddleware_HeaderFallback(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "doctor-3")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if UserID(c) != "doctor-3" {
			t.Errorf("expected doctor-3, got %q", UserID(c))
		}
		return c.NoContent(http.StatusOK)
	}
	if err := DevMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
