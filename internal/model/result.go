package model

import "net/http"

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindBadRequest   ErrorKind = "bad_request"
	KindNotFound     ErrorKind = "not_found"
	KindUpstream     ErrorKind = "upstream"
	KindInternal     ErrorKind = "internal"
)

// MessageInternal is the fixed message returned for local failures.
const MessageInternal = "Internal Server Error"

// Result is the outcome of a gateway operation: either Ok with data or Err
// with a kind and a message. The zero Kind marks success.
type Result struct {
	status  int
	Data    any
	Kind    ErrorKind
	Message string
}

// Envelope is the JSON body written for every Result.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Ok returns a 200 result carrying data.
func Ok(data any) Result {
	return Result{status: http.StatusOK, Data: data}
}

// OkStatus returns a successful result with an explicit 2xx status.
func OkStatus(status int, data any) Result {
	return Result{status: status, Data: data}
}

// Err returns a failed result whose status is derived from kind.
func Err(kind ErrorKind, message string) Result {
	return Result{status: kind.status(), Kind: kind, Message: message}
}

// ErrStatus returns a failed result with an explicit status code.
func ErrStatus(status int, kind ErrorKind, message string) Result {
	return Result{status: status, Kind: kind, Message: message}
}

// UpstreamErr returns a failed result relaying an upstream status code.
func UpstreamErr(status int, message string) Result {
	if message == "" {
		message = http.StatusText(status)
	}
	return Result{status: status, Kind: KindUpstream, Message: message}
}

// Internal is the fixed 500 result for local exceptions.
func Internal() Result {
	return Err(KindInternal, MessageInternal)
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Kind == ""
}

// Status returns the HTTP status code for the result.
func (r Result) Status() int {
	if r.status != 0 {
		return r.status
	}
	if r.OK() {
		return http.StatusOK
	}
	return r.Kind.status()
}

// Envelope converts the result into its wire shape.
func (r Result) Envelope() Envelope {
	if r.OK() {
		return Envelope{Success: true, Data: r.Data, Message: r.Message}
	}
	return Envelope{Success: false, Message: r.Message}
}

func (k ErrorKind) status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
