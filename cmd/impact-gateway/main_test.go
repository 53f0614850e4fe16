package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/apiclient"
	"impact-gateway/internal/auth"
	"impact-gateway/internal/client"
	"impact-gateway/internal/config"
	"impact-gateway/internal/handler"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/mock"
	"impact-gateway/internal/service"
	"impact-gateway/internal/session"
)

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			BodyMaxBytes: 64,
			CORSOrigins:  []string{"https://app.example"},
			RateLimit:    config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1},
		},
		Upstream: config.UpstreamConfig{BaseURL: upstreamURL, TimeoutSeconds: 5, IdleConnections: 2},
		Auth:     config.AuthConfig{Mode: config.AuthModeBearer},
		Mock:     config.MockConfig{Enabled: true},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// newGateway wires the server the same way the serve command does.
func newGateway(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	e := newEcho(cfg, logger, m)

	authority := auth.New(cfg)
	svc, err := service.NewProxyService(client.NewUpstreamClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	backend, err := mock.NewBackend(cfg, logger)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	handler.RegisterRoutes(handler.RouteParams{
		Echo:      e,
		Config:    cfg,
		Authority: authority,
		Metrics:   m,
		Proxy:     handler.NewProxyHandler(svc, logger),
		Mock:      handler.NewMockHandler(backend, authority, m, logger),
		Health:    handler.NewHealthHandler(cfg, authority, "test"),
	})
	return e
}

func TestNewEcho_RateLimitEnvelope(t *testing.T) {
	e := newGateway(t, testConfig("http://127.0.0.1:1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	for range 10 {
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
		if rec.Code == http.StatusTooManyRequests {
			if !strings.Contains(rec.Body.String(), `"success":false`) {
				t.Errorf("429 body = %s, want envelope", rec.Body.String())
			}
			return
		}
	}
	t.Error("expected a 429 after the burst")
}

func TestNewEcho_BodyLimit(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.RateLimit.Enabled = false
	e := newGateway(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(bytes.Repeat([]byte("x"), 256)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestNewEcho_CORSAndRequestID(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.RateLimit.Enabled = false
	e := newGateway(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/opportunities", http.NoBody)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("X-Request-Id not set")
	}
}

func TestClientAgainstGateway(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.BodyMaxBytes = 1 << 20
	srv := httptest.NewServer(newGateway(t, cfg))
	defer srv.Close()

	ctx := context.Background()
	store, err := session.NewSQLiteStore(t.TempDir() + "/session.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	expired := false
	c := apiclient.New(srv.URL, store, clientLogger("error"),
		apiclient.WithUnauthorizedHandler(func() { expired = true }))

	sess, err := c.Login(ctx, "admin@x.com", "demo")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.User.Role != "admin" {
		t.Errorf("role = %q, want admin", sess.User.Role)
	}

	resp, err := c.Do(ctx, "/api/v1/profile", apiclient.RequestOptions{})
	if err != nil || resp == nil {
		t.Fatalf("profile: resp = %v, err = %v", resp, err)
	}
	var profile map[string]any
	if err := apiclient.DecodeEnvelope(resp, &profile); err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if profile["role"] != "admin" {
		t.Errorf("profile role = %v, want admin", profile["role"])
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	resp, err = c.Do(ctx, "/api/v1/profile", apiclient.RequestOptions{})
	if err != nil || resp != nil {
		t.Fatalf("profile after logout: resp = %v, err = %v; want nil, nil", resp, err)
	}
	if !expired {
		t.Error("unauthorized handler not called")
	}
}

func TestPairs(t *testing.T) {
	v, err := pairs([]string{"a=1", "a=2", "b="})
	if err != nil {
		t.Fatalf("pairs() error = %v", err)
	}
	if got := v.Encode(); got != "a=1&a=2&b=" {
		t.Errorf("Encode() = %q", got)
	}
	if _, err := pairs([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestBuildLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := buildLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}
