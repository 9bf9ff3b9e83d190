package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// fakeSessions issues the ID token itself as the session cookie, so the
// cookie verifies against the same fakeVerifier
type fakeSessions struct {
	fakeVerifier
}

func (f fakeSessions) SessionCookie(_ context.Context, idToken string, expiresIn time.Duration) (string, error) {
	if expiresIn != sessionTTL {
		return "", errors.New("unexpected session length")
	}
	return idToken, nil
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer student-7", wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			s.e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			cookie := sessionCookie(rec)
			if tt.wantStatus != http.StatusOK {
				if cookie != nil {
					t.Errorf("unexpected session cookie %v", cookie)
				}
				return
			}
			if cookie == nil || cookie.Value != "student-7" || !cookie.HttpOnly || !cookie.Secure {
				t.Fatalf("cookie = %+v", cookie)
			}
			if cookie.MaxAge != int(sessionTTL.Seconds()) {
				t.Errorf("MaxAge = %d", cookie.MaxAge)
			}
		})
	}
}

func TestSessionCookieAuthenticatesAPI(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "student-7"})
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "expired"})
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/auth/logout", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Errorf("cookie = %+v, want a cleared session", cookie)
	}
}
