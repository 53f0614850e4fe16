package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/time/rate"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/client"
	"impact-gateway/internal/config"
	"impact-gateway/internal/handler"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/middleware"
	"impact-gateway/internal/mock"
	"impact-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cli struct {
	config.CLI `kong:"embed"`

	Version kong.VersionFlag `kong:"help='Print version and exit.'"`

	Serve  serveCmd  `kong:"cmd,default='1',help='Run the gateway (default).'"`
	Login  loginCmd  `kong:"cmd,help='Log in through a gateway and store the session.'"`
	Logout logoutCmd `kong:"cmd,help='Log out and clear the stored session.'"`
	Whoami whoamiCmd `kong:"cmd,help='Show the stored session.'"`
	Call   callCmd   `kong:"cmd,help='Send an authenticated request through a gateway.'"`
}

func main() {
	var root cli
	ctx := kong.Parse(&root,
		kong.Name("impact-gateway"),
		kong.Description("Authenticated API gateway for the community-impact platform."),
		kong.Vars{
			"version":      fmt.Sprintf("%s (%s, %s)", version, commit, date),
			"session_path": defaultSessionPath(),
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&root.CLI))
}

type serveCmd struct{}

func (serveCmd) Run(globals *config.CLI) error {
	app := fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return globals },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			auth.New,
			client.NewUpstreamClient,
			service.NewProxyService,
			mock.NewBackend,
			handler.NewProxyHandler,
			handler.NewMockHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return buildLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
}

func buildLogger(w io.Writer, levelName, format string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Server.ReadTimeout = 30 * time.Second
	// Upstream calls are bounded by the client timeout; the write timeout
	// must outlast it.
	e.Server.WriteTimeout = time.Duration(cfg.Upstream.TimeoutSeconds+10) * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
	}
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if len(cfg.Server.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.Server.CORSOrigins,
			AllowMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderAuthorization, echo.HeaderContentType,
				echo.HeaderAccept, echo.HeaderXRequestID,
			},
			ExposeHeaders: []string{echo.HeaderXRequestID, "X-Total-Count"},
		}))
	}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting gateway",
				"addr", addr,
				"upstream", cfg.Upstream.BaseURL,
				"auth_mode", cfg.Auth.Mode,
				"mock", cfg.Mock.Enabled,
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down gateway")
			return e.Shutdown(ctx)
		},
	})
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".impact-gateway-session.db"
	}
	return filepath.Join(dir, "impact-gateway", "session.db")
}
