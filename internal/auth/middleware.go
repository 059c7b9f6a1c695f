package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	// ContextKeyUserID is the echo context key for the authenticated user ID.
	ContextKeyUserID contextKey = "user_id"
)

// SetUserID stores the user ID in the echo context.
func SetUserID(c echo.Context, userID uuid.UUID) {
	c.Set(string(ContextKeyUserID), userID)
}

// GetUserID retrieves the user ID from the echo context.
func GetUserID(c echo.Context) (uuid.UUID, bool) {
	v := c.Get(string(ContextKeyUserID))
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Middleware validates the Authorization bearer token. A nil verifier
// (no secret configured) passes everything through — dev mode only.
func Middleware(verifier *Verifier) echo.MiddlewareFunc {
	return middleware(verifier, false)
}

// AdminMiddleware additionally requires the "admin" scope.
func AdminMiddleware(verifier *Verifier) echo.MiddlewareFunc {
	return middleware(verifier, true)
}

func middleware(verifier *Verifier, requireAdmin bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing or invalid Authorization header",
				})
			}

			claims, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid token: " + err.Error(),
				})
			}

			if requireAdmin && claims.Scope != "admin" {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "admin scope required",
				})
			}

			SetUserID(c, claims.UserID)
			return next(c)
		}
	}
}
