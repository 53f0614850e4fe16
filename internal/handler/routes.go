package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/config"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/middleware"
	"impact-gateway/internal/service"
)

// DefaultRoutes is the built-in proxy route table.
func DefaultRoutes() []service.Route {
	return []service.Route{
		{Method: http.MethodPost, Path: "/api/v1/auth/register", UpstreamPath: "/auth/register"},

		{Method: http.MethodGet, Path: "/api/v1/opportunities", UpstreamPath: "/opportunities", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/opportunities", UpstreamPath: "/opportunities", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/opportunities/detail", UpstreamMethod: http.MethodGet, UpstreamPath: "/opportunities/:id", Auth: true, ParamsFromBody: true},
		{Method: http.MethodGet, Path: "/api/v1/opportunities/:id", UpstreamPath: "/opportunities/:id", Auth: true},
		{Method: http.MethodPut, Path: "/api/v1/opportunities/:id", UpstreamPath: "/opportunities/:id", Auth: true},
		{Method: http.MethodDelete, Path: "/api/v1/opportunities/:id", UpstreamPath: "/opportunities/:id", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/opportunities/:id/apply", UpstreamPath: "/opportunities/:id/apply", Auth: true},

		{Method: http.MethodGet, Path: "/api/v1/users", UpstreamPath: "/users", Auth: true},
		{Method: http.MethodGet, Path: "/api/v1/users/:id", UpstreamPath: "/users/:id", Auth: true},
		{Method: http.MethodPatch, Path: "/api/v1/users/:id", UpstreamPath: "/users/:id", Auth: true},
		{Method: http.MethodDelete, Path: "/api/v1/users/:id", UpstreamPath: "/users/:id", Auth: true},

		{Method: http.MethodGet, Path: "/api/v1/reports", UpstreamPath: "/reports", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/reports", UpstreamPath: "/reports", Auth: true},
		{Method: http.MethodGet, Path: "/api/v1/reports/:id", UpstreamPath: "/reports/:id", Auth: true},

		{Method: http.MethodGet, Path: "/api/v1/notifications", UpstreamPath: "/notifications", Auth: true},
		{Method: http.MethodPatch, Path: "/api/v1/notifications/:id/read", UpstreamPath: "/notifications/:id/read", Auth: true},

		{Method: http.MethodGet, Path: "/api/v1/funding", UpstreamPath: "/funding", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/funding", UpstreamPath: "/funding", Auth: true},

		{Method: http.MethodGet, Path: "/api/v1/chat/conversations", UpstreamPath: "/chat/conversations", Auth: true},
		{Method: http.MethodGet, Path: "/api/v1/chat/conversations/:id/messages", UpstreamPath: "/chat/conversations/:id/messages", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/chat/conversations/:id/messages", UpstreamPath: "/chat/conversations/:id/messages", Auth: true},
	}
}

const overviewPath = "/api/v1/dashboard/overview"

// overviewSections are fetched together by the dashboard overview.
func overviewSections() map[string]service.Route {
	return map[string]service.Route{
		"opportunities": {Method: http.MethodGet, Path: overviewPath, UpstreamPath: "/opportunities", Auth: true},
		"notifications": {Method: http.MethodGet, Path: overviewPath, UpstreamPath: "/notifications", Auth: true},
	}
}

// mockedRoutes are the upstream equivalents of the mock endpoints, used when
// the mock backend is disabled.
func mockedRoutes() []service.Route {
	return []service.Route{
		{Method: http.MethodPost, Path: "/api/v1/auth/login", UpstreamPath: "/auth/login"},
		{Method: http.MethodPost, Path: "/api/v1/auth/logout", UpstreamPath: "/auth/logout"},
		{Method: http.MethodGet, Path: "/api/v1/profile", UpstreamPath: "/profile", Auth: true},
		{Method: http.MethodGet, Path: "/api/v1/dashboard/stats", UpstreamPath: "/dashboard/stats", Auth: true},
		{Method: http.MethodGet, Path: "/api/v1/events", UpstreamPath: "/events", Auth: true},
		{Method: http.MethodPost, Path: "/api/v1/events", UpstreamPath: "/events", Auth: true},
	}
}

// RouteParams holds everything RegisterRoutes wires onto the router.
type RouteParams struct {
	fx.In

	Echo      *echo.Echo
	Config    *config.Config
	Authority auth.Authority
	Metrics   *metrics.Metrics
	Proxy     *ProxyHandler
	Mock      *MockHandler
	Health    *HealthHandler
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(p RouteParams) {
	e := p.Echo
	requireAuth := middleware.BearerAuth(p.Authority, p.Metrics)

	e.GET("/healthz", p.Health.Healthz)
	e.GET("/gateway/status", p.Health.Status)
	if p.Config.Metrics.Enabled && p.Metrics != nil {
		e.GET(p.Config.Metrics.Path, echo.WrapHandler(p.Metrics.Handler()))
	}

	routes := DefaultRoutes()
	if p.Config.Mock.Enabled {
		e.POST("/api/v1/auth/login", p.Mock.Login)
		e.POST("/api/v1/auth/logout", p.Mock.Logout)
		e.GET("/api/v1/profile", p.Mock.Profile, requireAuth)
		e.GET("/api/v1/dashboard/stats", p.Mock.Stats, requireAuth)
		e.GET("/api/v1/events", p.Mock.ListEvents, requireAuth)
		e.POST("/api/v1/events", p.Mock.CreateEvent, requireAuth)
	} else {
		routes = append(routes, mockedRoutes()...)
	}
	for _, rc := range p.Config.Routes {
		routes = append(routes, service.RouteFromConfig(rc))
	}

	for _, r := range routes {
		var mws []echo.MiddlewareFunc
		if r.Auth {
			mws = append(mws, requireAuth)
		}
		e.Add(r.Method, r.Path, p.Proxy.Route(r), mws...)
	}

	e.GET(overviewPath, p.Proxy.Overview(overviewSections()), requireAuth)
}
