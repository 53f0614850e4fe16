package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/model"
)

// Context keys set by BearerAuth.
const (
	ContextKeyToken = "auth_token"
	ContextKeyUser  = "auth_user"
)

// BearerAuth returns an Echo middleware that rejects requests without a
// valid "Authorization: Bearer <token>" header with a 401 envelope.
// m may be nil.
func BearerAuth(authority auth.Authority, m *metrics.Metrics) echo.MiddlewareFunc {
	reject := func(c echo.Context, reason, message string) error {
		if m != nil {
			m.AuthFailures.WithLabelValues(reason).Inc()
		}
		return c.JSON(http.StatusUnauthorized, model.Err(model.KindUnauthorized, message).Envelope())
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return reject(c, "missing_header", "Authorization header required")
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			token = strings.TrimSpace(token)
			if !found || token == "" {
				return reject(c, "bad_scheme", "Bearer token required")
			}

			user, err := authority.Verify(token)
			if err != nil {
				return reject(c, "invalid_token", "Invalid token")
			}

			c.Set(ContextKeyToken, token)
			c.Set(ContextKeyUser, user)
			return next(c)
		}
	}
}

// UserFrom returns the user recovered by BearerAuth, or nil.
func UserFrom(c echo.Context) *model.User {
	u, _ := c.Get(ContextKeyUser).(*model.User)
	return u
}

// TokenFrom returns the bearer token accepted by BearerAuth, or "".
func TokenFrom(c echo.Context) string {
	t, _ := c.Get(ContextKeyToken).(string)
	return t
}
