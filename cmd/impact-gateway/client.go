package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"impact-gateway/internal/apiclient"
	"impact-gateway/internal/config"
	"impact-gateway/internal/session"
)

// errSessionExpired is returned when the gateway rejects the stored token.
var errSessionExpired = errors.New("session expired or missing; run `impact-gateway login`")

// ClientFlags are shared by the commands that talk to a running gateway.
type ClientFlags struct {
	GatewayURL string `kong:"name='gateway-url',help='Gateway base URL.',env='GATEWAY_URL',default='http://localhost:8000'"`
	Session    string `kong:"help='Path to the session database.',env='IMPACT_SESSION_DB',default='${session_path}'"`
}

func (f ClientFlags) open() (*session.Store, error) {
	if err := os.MkdirAll(filepath.Dir(f.Session), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return session.NewSQLiteStore(f.Session)
}

func (f ClientFlags) client(store *session.Store, globals *config.CLI) *apiclient.Client {
	return apiclient.New(f.GatewayURL, store, clientLogger(globals.LogLevel),
		apiclient.WithUnauthorizedHandler(func() {
			fmt.Fprintln(os.Stderr, errSessionExpired.Error())
		}),
	)
}

// clientLogger writes text logs to stderr so stdout carries only results.
func clientLogger(level string) *slog.Logger {
	if level == "" {
		level = "warn"
	}
	return buildLogger(os.Stderr, level, "text")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type loginCmd struct {
	ClientFlags `kong:"embed"`

	Email    string `kong:"required,help='Account email.'"`
	Password string `kong:"required,help='Account password.',env='IMPACT_PASSWORD'"`
}

func (cmd *loginCmd) Run(globals *config.CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := cmd.open()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sess, err := cmd.client(store, globals).Login(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", sess.User.Email, sess.User.Role)
	return nil
}

type logoutCmd struct {
	ClientFlags `kong:"embed"`
}

func (cmd *logoutCmd) Run(globals *config.CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := cmd.open()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := cmd.client(store, globals).Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway logout failed, local session cleared: %v\n", err)
	}
	fmt.Println("logged out")
	return nil
}

type whoamiCmd struct {
	ClientFlags `kong:"embed"`

	Remote bool `kong:"help='Ask the gateway for the profile instead of reading the local session.'"`
}

func (cmd *whoamiCmd) Run(globals *config.CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := cmd.open()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if !cmd.Remote {
		sess, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			return errSessionExpired
		}
		return printJSON(sess.User)
	}

	resp, err := cmd.client(store, globals).Do(ctx, "/api/v1/profile", apiclient.RequestOptions{})
	if err != nil {
		return err
	}
	if resp == nil {
		return errSessionExpired
	}
	var profile map[string]any
	if err := apiclient.DecodeEnvelope(resp, &profile); err != nil {
		return err
	}
	return printJSON(profile)
}

type callCmd struct {
	ClientFlags `kong:"embed"`

	Method string   `kong:"arg,help='HTTP method.'"`
	Path   string   `kong:"arg,help='Gateway path, e.g. /api/v1/opportunities.'"`
	Data   string   `kong:"short='d',help='JSON request body.',xor='body'"`
	Form   []string `kong:"short='F',help='Form field key=value (repeatable).',xor='body'"`
	File   string   `kong:"type='existingfile',help='Send a file as the raw request body.',xor='body'"`
	Type   string   `kong:"help='Content type for --file.',default='application/octet-stream'"`
	Query  []string `kong:"short='q',help='Query parameter key=value (repeatable).'"`
}

func (cmd *callCmd) Run(globals *config.CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts := apiclient.RequestOptions{Method: strings.ToUpper(cmd.Method)}

	query, err := pairs(cmd.Query)
	if err != nil {
		return err
	}
	opts.Query = query

	switch {
	case cmd.Data != "":
		var v any
		if err := json.Unmarshal([]byte(cmd.Data), &v); err != nil {
			return fmt.Errorf("--data is not valid JSON: %w", err)
		}
		opts.Body = apiclient.JSON(v)
	case len(cmd.Form) > 0:
		form, err := pairs(cmd.Form)
		if err != nil {
			return err
		}
		opts.Body = apiclient.Form(form)
	case cmd.File != "":
		f, err := os.Open(cmd.File)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		opts.Body = apiclient.Binary(f, cmd.Type)
	}

	store, err := cmd.open()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	resp, err := cmd.client(store, globals).Do(ctx, cmd.Path, opts)
	if err != nil {
		return err
	}
	if resp == nil {
		return errSessionExpired
	}
	defer func() { _ = resp.Body.Close() }()

	fmt.Fprintln(os.Stderr, resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}

func pairs(items []string) (url.Values, error) {
	values := url.Values{}
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", item)
		}
		values.Add(k, v)
	}
	return values, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
