package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// TokenVerifier is the part of the Firebase auth client used to authenticate callers
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
}

// Principal is the authenticated caller
type Principal struct {
	UID       string
	Email     string
	Role      string
	StudentID uint
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessStudent reports whether the caller may see the data of a student
func (p Principal) CanAccessStudent(studentID uint) bool {
	return p.IsAdmin() || (p.Role == RoleStudent && p.StudentID != 0 && p.StudentID == studentID)
}

const principalKey = "principal"

// PrincipalFrom returns the caller set by RequireAuth
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// RequireAuth verifies a Firebase ID token from the Authorization header, or a
// session cookie for browser clients, and stores the caller in the context
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication is not configured")
			}

			ctx := c.Request().Context()
			var token *auth.Token
			var err error
			if raw, ok := bearerToken(c.Request()); ok {
				token, err = verifier.VerifyIDToken(ctx, raw)
			} else if cookie, cerr := c.Cookie("session"); cerr == nil && cookie.Value != "" {
				token, err = verifier.VerifySessionCookie(ctx, cookie.Value)
			} else {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
			}
			if err != nil || token == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
			}

			principal := principalFromToken(token)
			if principal.Role == "" {
				return echo.NewHTTPError(http.StatusForbidden, "account has no role")
			}
			c.Set(principalKey, principal)
			c.Set("userUID", principal.UID)
			return next(c)
		}
	}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func principalFromToken(token *auth.Token) Principal {
	p := Principal{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		p.Email = email
	}
	if role, ok := token.Claims["role"].(string); ok && (role == RoleAdmin || role == RoleStudent) {
		p.Role = role
	}
	// custom claims come back from JSON, so numbers are float64
	switch id := token.Claims["student_id"].(type) {
	case float64:
		if id > 0 {
			p.StudentID = uint(id)
		}
	case int:
		if id > 0 {
			p.StudentID = uint(id)
		}
	}
	return p
}
