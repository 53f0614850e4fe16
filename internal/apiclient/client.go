// Package apiclient is the authenticated request wrapper used by gateway
// callers. It attaches the stored bearer token to every request and drops the
// session the first time the gateway answers 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"impact-gateway/internal/model"
	"impact-gateway/internal/session"
)

// Payload is a request body together with its content type.
type Payload struct {
	reader      io.Reader
	contentType string
	err         error
}

// JSON encodes v as a JSON payload.
func JSON(v any) Payload {
	b, err := json.Marshal(v)
	if err != nil {
		return Payload{err: fmt.Errorf("encode JSON payload: %w", err)}
	}
	return Payload{reader: bytes.NewReader(b), contentType: "application/json"}
}

// Form encodes values as an application/x-www-form-urlencoded payload.
func Form(values url.Values) Payload {
	return Payload{
		reader:      strings.NewReader(values.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}
}

// Binary sends r unchanged with the given content type, for example a
// multipart body built with mime/multipart.
func Binary(r io.Reader, contentType string) Payload {
	return Payload{reader: r, contentType: contentType}
}

// RequestOptions describes one call through the wrapper.
type RequestOptions struct {
	Method string // defaults to GET
	Header http.Header
	Query  url.Values
	Body   Payload
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUnauthorizedHandler sets the hook run after a 401 clears the session.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// Client sends authenticated requests to the gateway.
type Client struct {
	baseURL        string
	store          *session.Store
	http           *http.Client
	logger         *slog.Logger
	onUnauthorized func()
}

// New creates a Client for the gateway at baseURL.
func New(baseURL string, store *session.Store, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		http:    &http.Client{Timeout: 2 * time.Minute},
		logger:  logger.With("component", "api_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends a request to path. Any status other than 401 is returned as is and
// the caller owns the body. On 401 the stored session is cleared, the
// unauthorized hook runs and Do returns nil, nil.
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions) (*http.Response, error) {
	return c.send(ctx, path, opts, true)
}

// send is Do with control over the unauthorized hook. A rejected login is a
// 401 too, and must not be reported as an expired session.
func (c *Client) send(ctx context.Context, path string, opts RequestOptions, notify bool) (*http.Response, error) {
	if opts.Body.err != nil {
		return nil, opts.Body.err
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, opts.Body.reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, vals := range opts.Header {
		req.Header[http.CanonicalHeaderKey(key)] = vals
	}

	contentType := opts.Body.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)

	token, err := c.store.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if err := c.store.Clear(ctx); err != nil {
			c.logger.Error("clear session after 401", "err", err)
		}
		if !notify {
			return nil, nil
		}
		c.logger.Warn("session rejected by gateway", "path", path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, nil
	}

	return resp, nil
}

// ErrLoginFailed is returned by Login when the gateway rejects the request.
var ErrLoginFailed = errors.New("login failed")

// loginReply accepts both the flat {success, token, role, user} shape and
// the enveloped {success, data: {token, role, user}} shape.
type loginReply struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	Role    string          `json:"role"`
	User    model.User      `json:"user"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type loginData struct {
	Token string     `json:"token"`
	Role  string     `json:"role"`
	User  model.User `json:"user"`
}

// credentials returns the token and user from whichever shape carries them.
func (r *loginReply) credentials() (string, model.User, error) {
	token, role, user := r.Token, r.Role, r.User
	if token == "" && len(r.Data) > 0 && string(r.Data) != "null" {
		var d loginData
		if err := json.Unmarshal(r.Data, &d); err != nil {
			return "", model.User{}, fmt.Errorf("decode login data: %w", err)
		}
		token, role, user = d.Token, d.Role, d.User
	}
	if user.Role == "" {
		user.Role = role
	}
	return token, user, nil
}

// Login posts credentials and stores the returned session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := c.send(ctx, "/api/v1/auth/login", RequestOptions{
		Method: http.MethodPost,
		Body:   JSON(map[string]string{"email": email, "password": password}),
	}, false)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: Invalid credentials", ErrLoginFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	var reply loginReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	token, user, err := reply.credentials()
	if err != nil {
		return nil, err
	}
	if !reply.Success || token == "" {
		msg := reply.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	sess := &model.Session{Token: token, User: user}
	if err := c.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout notifies the gateway and clears the stored session. The session is
// cleared even when the gateway call fails.
func (c *Client) Logout(ctx context.Context) error {
	resp, callErr := c.Do(ctx, "/api/v1/auth/logout", RequestOptions{Method: http.MethodPost})
	if resp != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	return callErr
}

// APIError is a failure envelope returned by the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// DecodeEnvelope reads a gateway envelope from resp, closing the body. On
// success the data field is decoded into out (which may be nil). A failure
// envelope or a non-2xx status is returned as an *APIError.
func DecodeEnvelope(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
	} else {
		env.Success = true
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}
