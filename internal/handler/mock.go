package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/middleware"
	"impact-gateway/internal/mock"
	"impact-gateway/internal/model"
)

// loginResponse is the flat body returned by a successful login.
type loginResponse struct {
	Success bool       `json:"success"`
	Role    string     `json:"role"`
	Token   string     `json:"token"`
	User    model.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MockHandler serves the resources answered by the in-process mock backend.
type MockHandler struct {
	backend   *mock.Backend
	authority auth.Authority
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMockHandler creates a MockHandler. m may be nil.
func NewMockHandler(backend *mock.Backend, authority auth.Authority, m *metrics.Metrics, logger *slog.Logger) *MockHandler {
	return &MockHandler{
		backend:   backend,
		authority: authority,
		metrics:   m,
		logger:    logger.With("component", "mock_handler"),
	}
}

// Login checks the demo credentials and issues a token.
func (h *MockHandler) Login(c echo.Context) error {
	h.count("login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return writeResult(c, model.Err(model.KindBadRequest, "Invalid request body"), nil)
	}

	user, err := h.backend.Authenticate(req.Email, req.Password)
	switch {
	case errors.Is(err, mock.ErrMissingCredentials):
		return writeResult(c, model.Err(model.KindBadRequest, "Email and password are required"), nil)
	case errors.Is(err, mock.ErrInvalidCredentials):
		return writeResult(c, model.Err(model.KindUnauthorized, "Invalid credentials"), nil)
	case err != nil:
		return err
	}

	token, err := h.authority.Issue(user)
	if err != nil {
		h.logger.Error("issue token", "err", err)
		return writeResult(c, model.Internal(), nil)
	}

	h.logger.Info("mock login", "role", user.Role)
	return c.JSON(http.StatusOK, loginResponse{
		Success: true,
		Role:    user.Role,
		Token:   token,
		User:    user,
	})
}

// Logout acknowledges a logout. Tokens are not revoked; the client drops
// its stored session.
func (h *MockHandler) Logout(c echo.Context) error {
	h.count("logout")
	return writeResult(c, model.Ok(nil), nil)
}

// Profile returns the user recovered from the bearer token. Mock tokens
// carry only a role, so they are answered with that role's fixture profile.
func (h *MockHandler) Profile(c echo.Context) error {
	h.count("profile")

	user := middleware.UserFrom(c)
	if user == nil {
		return writeResult(c, model.Err(model.KindUnauthorized, "Authorization header required"), nil)
	}
	if user.Email == "" {
		if p, ok := h.backend.Profile(user.Role); ok {
			return writeResult(c, model.Ok(p), nil)
		}
	}
	return writeResult(c, model.Ok(user), nil)
}

// Stats returns the dashboard statistics after the configured delay.
func (h *MockHandler) Stats(c echo.Context) error {
	h.count("stats")

	stats, err := h.backend.Stats(c.Request().Context())
	if err != nil {
		h.logger.Warn("stats delay interrupted", "err", err)
		return writeResult(c, model.Internal(), nil)
	}
	return writeResult(c, model.Ok(stats), nil)
}

// ListEvents returns the current event list.
func (h *MockHandler) ListEvents(c echo.Context) error {
	h.count("events")
	return writeResult(c, model.Ok(h.backend.Events()), nil)
}

// CreateEvent appends an event to the in-memory list.
func (h *MockHandler) CreateEvent(c echo.Context) error {
	h.count("events")

	var in mock.EventInput
	if err := c.Bind(&in); err != nil {
		return writeResult(c, model.Err(model.KindBadRequest, "Invalid request body"), nil)
	}

	createdBy := ""
	if user := middleware.UserFrom(c); user != nil {
		createdBy = user.Role
		if user.Email != "" {
			createdBy = user.Email
		}
	}

	ev, err := h.backend.AddEvent(in, createdBy)
	if err != nil {
		return writeResult(c, model.Err(model.KindBadRequest, err.Error()), nil)
	}
	return writeResult(c, model.OkStatus(http.StatusCreated, ev), nil)
}

func (h *MockHandler) count(resource string) {
	if h.metrics != nil {
		h.metrics.MockResponses.WithLabelValues(resource).Inc()
	}
}
