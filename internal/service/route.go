package service

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"impact-gateway/internal/config"
)

// Route describes one proxied resource: the inbound method and path the
// gateway serves, and where the request lands upstream.
type Route struct {
	Method string
	Path   string

	// UpstreamMethod defaults to Method when empty.
	UpstreamMethod string
	// UpstreamPath is relative to the upstream base URL and may contain
	// :name segments filled from path (or body) parameters.
	UpstreamPath string

	Auth bool
	// ParamsFromBody reads upstream path parameters from the top-level
	// fields of a JSON request body.
	ParamsFromBody bool
}

// RouteFromConfig converts a configured route into a Route.
func RouteFromConfig(rc config.RouteConfig) Route {
	return Route{
		Method:         rc.Method,
		Path:           rc.Path,
		UpstreamMethod: rc.UpstreamMethod,
		UpstreamPath:   rc.UpstreamPath,
		Auth:           !rc.Public,
		ParamsFromBody: rc.ParamsFromBody,
	}
}

func (r Route) upstreamMethod() string {
	if r.UpstreamMethod != "" {
		return r.UpstreamMethod
	}
	return r.Method
}

// String identifies the route in logs.
func (r Route) String() string {
	return r.Method + " " + r.Path
}

// expandPath fills :name segments of tmpl from params, path-escaping each value.
func expandPath(tmpl string, params map[string]string) (string, error) {
	segments := strings.Split(tmpl, "/")
	for i, seg := range segments {
		name, ok := strings.CutPrefix(seg, ":")
		if !ok {
			continue
		}
		v := params[name]
		if v == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		segments[i] = url.PathEscape(v)
	}
	return strings.Join(segments, "/"), nil
}

func sendsBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}
