package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/client"
	"impact-gateway/internal/config"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/mock"
	"impact-gateway/internal/service"
)

// testGateway is a fully wired router pointed at upstreamURL.
type testGateway struct {
	e       *echo.Echo
	cfg     *config.Config
	metrics *metrics.Metrics
	backend *mock.Backend
}

func newTestGateway(t *testing.T, upstreamURL string, mutate ...func(*config.Config)) *testGateway {
	t.Helper()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         upstreamURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Auth:    config.AuthConfig{Mode: config.AuthModeBearer},
		Mock:    config.MockConfig{Enabled: true},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	authority := auth.New(cfg)
	svc, err := service.NewProxyService(client.NewUpstreamClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	backend := mock.NewBackendFromFixtures(mock.DefaultFixtures(), 0, 0)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	RegisterRoutes(RouteParams{
		Echo:      e,
		Config:    cfg,
		Authority: authority,
		Metrics:   m,
		Proxy:     NewProxyHandler(svc, logger),
		Mock:      NewMockHandler(backend, authority, m, logger),
		Health:    NewHealthHandler(cfg, authority, "test"),
	})

	return &testGateway{e: e, cfg: cfg, metrics: m, backend: backend}
}

// do sends a request with an optional JSON body and bearer token.
func (g *testGateway) do(method, target, body, token string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	g.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body
}

// jsonUpstream answers every request with status and body.
func jsonUpstream(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
