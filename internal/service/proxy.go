// Package service implements the generic forwarding used by every proxy route.
package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"impact-gateway/internal/client"
	"impact-gateway/internal/config"
	"impact-gateway/internal/model"
)

var (
	// ErrMissingParam is returned when an upstream path parameter has no value.
	ErrMissingParam = errors.New("missing path parameter")
	// ErrInvalidBody is returned when a JSON request body cannot be decoded.
	ErrInvalidBody = errors.New("invalid JSON body")
)

// forwardableRequestHeaders are the only request headers forwarded upstream.
// Content-Type is set separately from the prepared body.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Authorization",
	"X-Request-Id",
}

// forwardableResponseHeaders are the only upstream response headers relayed.
// The body is re-encoded, so framing headers are never copied.
var forwardableResponseHeaders = map[string]bool{
	"Cache-Control": true,
	"Location":      true,
	"Retry-After":   true,
	"X-Total-Count": true,
}

const userAgent = "impact-gateway/1.0"

// Relay is the outcome of a forwarded request.
type Relay struct {
	Result model.Result
	Header http.Header
}

// ProxyService forwards gateway requests to the upstream platform API.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	baseURL string
}

// NewProxyService creates a ProxyService for the configured upstream.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""

	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: strings.TrimRight(u.String(), "/"),
	}, nil
}

// BaseURL returns the upstream origin requests are forwarded to.
func (s *ProxyService) BaseURL() string {
	return s.baseURL
}

// Forward sends pr upstream according to route and converts the upstream
// reply into a Result. Non-2xx upstream replies are results, not errors;
// an error means the call itself failed (ErrMissingParam and ErrInvalidBody
// mark caller mistakes, anything else is a local or network failure).
func (s *ProxyService) Forward(route Route, pr *model.ProxyRequest) (*Relay, error) {
	method := route.upstreamMethod()
	params := make(map[string]string, len(pr.Params))
	maps.Copy(params, pr.Params)

	var (
		body        io.Reader
		contentType string
	)
	if route.ParamsFromBody {
		fields, raw, err := decodeObject(pr.Body)
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			if _, taken := params[k]; !taken {
				params[k] = v
			}
		}
		if sendsBody(method) && raw != nil {
			body, contentType = bytes.NewReader(raw), "application/json"
		}
	} else if sendsBody(method) {
		var err error
		body, contentType, err = prepareBody(pr.Header.Get("Content-Type"), pr.Body)
		if err != nil {
			return nil, err
		}
	}

	path, err := expandPath(route.UpstreamPath, params)
	if err != nil {
		return nil, err
	}

	upstreamURL := s.buildUpstreamURL(path, pr.Query)
	header := s.filterRequestHeaders(pr.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	s.logger.Debug("forwarding request",
		"route", route.String(),
		"upstream_method", method,
		"upstream_path", path,
	)

	resp, err := s.client.DoStream(pr.Ctx, method, upstreamURL, header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	result, err := relayResult(resp)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", route.String(), err)
	}

	return &Relay{
		Result: result,
		Header: s.filterResponseHeaders(resp.Header),
	}, nil
}

func (s *ProxyService) buildUpstreamURL(path string, query url.Values) string {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	return dst
}

// prepareBody re-serialises JSON bodies and passes everything else through
// untouched with its original content type (form, multipart, binary).
func prepareBody(contentType string, body io.Reader) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", nil
	}

	if contentType == "" {
		if v, err := decodeJSON(raw); err == nil {
			return encodeJSON(v)
		}
		return bytes.NewReader(raw), "application/octet-stream", nil
	}

	if isJSON(contentType) {
		v, err := decodeJSON(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		return encodeJSON(v)
	}

	return bytes.NewReader(raw), contentType, nil
}

// decodeObject reads a JSON object body and returns its scalar fields as
// strings, plus the re-encoded object.
func decodeObject(body io.Reader) (map[string]string, []byte, error) {
	if body == nil {
		return nil, nil, fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("read request body: %w", err)
	}
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: expected an object", ErrInvalidBody)
	}

	fields := make(map[string]string, len(obj))
	for k, val := range obj {
		switch val := val.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request body: %w", err)
	}
	return fields, out, nil
}

// relayResult decodes an upstream reply. Only an unreadable body, or a 2xx
// body that is not JSON, is an error.
func relayResult(resp *model.ProxyResponse) (model.Result, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Result{}, fmt.Errorf("read upstream body: %w", err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if len(bytes.TrimSpace(raw)) == 0 {
		if ok {
			return model.OkStatus(resp.StatusCode, nil), nil
		}
		return model.UpstreamErr(resp.StatusCode, ""), nil
	}

	v, err := decodeJSON(raw)
	if err != nil {
		if ok {
			return model.Result{}, fmt.Errorf("decode upstream body: %w", err)
		}
		return model.UpstreamErr(resp.StatusCode, ""), nil
	}

	data, message, success, wrapped := unwrapEnvelope(v)
	if !wrapped {
		if ok {
			return model.OkStatus(resp.StatusCode, v), nil
		}
		return model.UpstreamErr(resp.StatusCode, messageFrom(v)), nil
	}

	if ok && success {
		r := model.OkStatus(resp.StatusCode, data)
		r.Message = message
		return r, nil
	}
	if message == "" {
		message = messageFrom(v)
	}
	return model.UpstreamErr(resp.StatusCode, message), nil
}

// envelopeKeys are the only keys of a body the gateway treats as its own
// envelope. Any other key means the body carries data at the top level.
var envelopeKeys = map[string]bool{"success": true, "data": true, "message": true}

// unwrapEnvelope recognises a body that is exactly {success, data|message}.
// A body with a boolean success next to other fields (a flat login reply,
// a page with total/page counters) is not unwrapped; it is relayed whole,
// with only its success flag honoured.
func unwrapEnvelope(v any) (data any, message string, success, wrapped bool) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		return nil, "", false, false
	}
	success, hasFlag := obj["success"].(bool)
	if !hasFlag {
		return nil, "", false, false
	}
	message, _ = obj["message"].(string)
	for key := range obj {
		if !envelopeKeys[key] {
			return obj, message, success, true
		}
	}
	return obj["data"], message, success, true
}

// messageFrom extracts a best-effort error message from an upstream body.
func messageFrom(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		switch val := obj[key].(type) {
		case string:
			if val != "" {
				return val
			}
		case map[string]any:
			if m, ok := val["message"].(string); ok && m != "" {
				return m
			}
		}
	}
	return ""
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func encodeJSON(v any) (io.Reader, string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(out), "application/json", nil
}
