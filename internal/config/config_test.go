package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
[upstream]
base_url = "http://backend.internal:5000"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880
cors_origins = ["http://localhost:3000"]

[upstream]
base_url = "https://api.impact.example/v1/"
timeout_seconds = 60
idle_connections = 50

[auth]
mode = "JWT"
jwt_secret = "s3cret"

[mock]
enabled = true
min_delay_ms = 100
max_delay_ms = 400

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Upstream.BaseURL != "https://api.impact.example/v1" {
		t.Errorf("Upstream.BaseURL = %q, want trailing slash trimmed", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Auth.Mode != AuthModeJWT {
		t.Errorf("Auth.Mode = %q, want %q", cfg.Auth.Mode, AuthModeJWT)
	}
	if !cfg.Mock.Enabled || cfg.Mock.MaxDelayMS != 400 {
		t.Errorf("Mock = %+v", cfg.Mock)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, minimalConfig)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if cfg.Upstream.TimeoutSeconds != 120 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 120)
	}
	if cfg.Auth.Mode != AuthModeBearer {
		t.Errorf("default Auth.Mode = %q, want %q", cfg.Auth.Mode, AuthModeBearer)
	}
	if cfg.Auth.TokenTTLMinutes != 1440 {
		t.Errorf("default Auth.TokenTTLMinutes = %d, want %d", cfg.Auth.TokenTTLMinutes, 1440)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Mock.Enabled {
		t.Error("expected Mock.Enabled = false by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[upstream]
base_url = "http://backend.internal:5000"

[log]
level = "info"
`)

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		Port:        3000,
		UpstreamURL: "https://api.impact.example",
		LogLevel:    "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.BaseURL != "https://api.impact.example" {
		t.Errorf("Upstream.BaseURL = %q, want %q (CLI override)", cfg.Upstream.BaseURL, "https://api.impact.example")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_UpstreamFromCLIOnly(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"info\"\n")

	cfg, err := Load(&CLI{Config: path, UpstreamURL: "http://localhost:5000"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.BaseURL != "http://localhost:5000" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing upstream",
			data:    "[server]\nport = 8000\n",
			wantErr: "upstream.base_url is required",
		},
		{
			name:    "ftp upstream",
			data:    "[upstream]\nbase_url = \"ftp://backend\"\n",
			wantErr: "http or https",
		},
		{
			name:    "upstream without host",
			data:    "[upstream]\nbase_url = \"http://\"\n",
			wantErr: "no host",
		},
		{
			name:    "negative port",
			data:    minimalConfig + "[server]\nport = -1\n",
			wantErr: "server.port",
		},
		{
			name:    "negative body_max_bytes",
			data:    minimalConfig + "[server]\nbody_max_bytes = -1\n",
			wantErr: "server.body_max_bytes",
		},
		{
			name:    "negative timeout",
			data:    "[upstream]\nbase_url = \"http://backend\"\ntimeout_seconds = -5\n",
			wantErr: "upstream.timeout_seconds",
		},
		{
			name:    "rate limit enabled with zero rps",
			data:    minimalConfig + "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n",
			wantErr: "requests_per_second",
		},
		{
			name:    "unknown auth mode",
			data:    minimalConfig + "[auth]\nmode = \"basic\"\n",
			wantErr: "auth.mode",
		},
		{
			name:    "jwt without secret",
			data:    minimalConfig + "[auth]\nmode = \"jwt\"\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "jwt placeholder secret",
			data:    minimalConfig + "[auth]\nmode = \"jwt\"\njwt_secret = \"CHANGE_ME\"\n",
			wantErr: "placeholder",
		},
		{
			name:    "mock max below min",
			data:    minimalConfig + "[mock]\nmin_delay_ms = 500\nmax_delay_ms = 100\n",
			wantErr: "mock.max_delay_ms",
		},
		{
			name:    "invalid log level",
			data:    minimalConfig + "[log]\nlevel = \"verbose\"\n",
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			data:    minimalConfig + "[log]\nformat = \"xml\"\n",
			wantErr: "log.format",
		},
		{
			name:    "route with bad method",
			data:    minimalConfig + "[[routes]]\nmethod = \"TRACE\"\npath = \"/api/v1/x\"\nupstream_path = \"/x\"\n",
			wantErr: "routes[0]",
		},
		{
			name:    "route outside api prefix",
			data:    minimalConfig + "[[routes]]\nmethod = \"GET\"\npath = \"/x\"\nupstream_path = \"/x\"\n",
			wantErr: "/api/v1/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Routes(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[[routes]]
method = "get"
path = "/api/v1/volunteers"
upstream_path = "/volunteers"

[[routes]]
method = "POST"
path = "/api/v1/volunteers/lookup"
upstream_method = "GET"
upstream_path = "/volunteers/:id"
params_from_body = true
public = true
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("len(Routes) = %d, want 2", len(cfg.Routes))
	}
	if cfg.Routes[0].Method != "GET" || cfg.Routes[0].UpstreamMethod != "GET" {
		t.Errorf("Routes[0] methods = %q/%q, want GET/GET", cfg.Routes[0].Method, cfg.Routes[0].UpstreamMethod)
	}
	if cfg.Routes[0].Public {
		t.Error("Routes[0].Public = true, want false")
	}
	if !cfg.Routes[1].ParamsFromBody || !cfg.Routes[1].Public {
		t.Errorf("Routes[1] = %+v", cfg.Routes[1])
	}
	if cfg.Routes[1].UpstreamMethod != "GET" {
		t.Errorf("Routes[1].UpstreamMethod = %q, want GET", cfg.Routes[1].UpstreamMethod)
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths(t *testing.T) {
	first := writeConfig(t, minimalConfig)
	second := writeConfig(t, minimalConfig)

	if got := findConfigInPaths([]string{"/nonexistent/a.toml", second}); got != second {
		t.Errorf("findConfigInPaths() = %q, want %q", got, second)
	}
	if got := findConfigInPaths([]string{first, second}); got != first {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, first)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"custom path", "/custom-metrics", ""},
		{"no leading slash", "metrics", "metrics.path"},
		{"api prefix exact", "/api/v1", "conflicts"},
		{"api prefix sub", "/api/v1/metrics", "conflicts"},
		{"healthz", "/healthz", "conflicts"},
		{"gateway status", "/gateway/status", "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, minimalConfig+"[metrics]\nenabled = true\npath = \""+tt.path+"\"\n")
			cfg, err := Load(cliWithPath(path))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				if cfg.Metrics.Path != tt.path {
					t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.path)
				}
				return
			}
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, minimalConfig+"[metrics]\nenabled = false\npath = \"bad-no-slash\"\n")
	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
