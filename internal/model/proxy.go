// Package model defines the types shared by the gateway, the mock backend
// and the API client.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest is an inbound gateway request on its way to the upstream API.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Path   string
	Params map[string]string
	Query  url.Values
	Header http.Header
	Body   io.ReadCloser
}

// ProxyResponse is the raw upstream response. The body is owned by the caller.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
