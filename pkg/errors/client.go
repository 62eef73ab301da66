package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/milan604/sessionhttp/pkg/response"
)

// Code classifies client errors.
type Code string

const (
	CodeConfiguration    Code = "configuration"
	CodeTransport        Code = "transport"
	CodeTooManyRedirects Code = "too_many_redirects"
	CodeJSON             Code = "json_error"
	CodeStatus           Code = "status"
	CodeHook             Code = "hook"
	CodeUnknown          Code = "unknown"
)

// Suggestion points at one offending field of a configuration.
type Suggestion struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigurationError is a request that cannot be built: a malformed URL, a
// content type collision or invalid settings. It happens before any I/O.
type ConfigurationError struct {
	Message     string
	Suggestions []Suggestion
	Err         error
}

// Configuration creates a ConfigurationError.
func Configuration(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// WithCause sets the underlying error.
func (e *ConfigurationError) WithCause(err error) *ConfigurationError {
	e.Err = err
	return e
}

// WithSuggestion appends a per-field hint.
func (e *ConfigurationError) WithSuggestion(field, msg string) *ConfigurationError {
	e.Suggestions = append(e.Suggestions, Suggestion{Field: field, Message: msg})
	return e
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration: ")
	b.WriteString(e.Message)
	for _, s := range e.Suggestions {
		fmt.Fprintf(&b, "; %s: %s", s.Field, s.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Code implements coder.
func (e *ConfigurationError) Code() Code { return CodeConfiguration }

// TransportError is a failure of the underlying transport: DNS, connect, TLS,
// an interrupted read, or a cancelled or expired context.
type TransportError struct {
	// Method and URL of the request that was being sent.
	Method string
	URL    string
	Err    error

	timeout  bool
	canceled bool
}

// Transport wraps err as a TransportError for the given request.
func Transport(method, url string, err error) *TransportError {
	te := &TransportError{Method: method, URL: url, Err: err}
	var ne net.Error
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		te.timeout = true
	case stdErrors.Is(err, context.Canceled):
		te.canceled = true
	case stdErrors.As(err, &ne) && ne.Timeout():
		te.timeout = true
	}
	return te
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Code implements coder.
func (e *TransportError) Code() Code { return CodeTransport }

// Timeout reports whether a deadline expired.
func (e *TransportError) Timeout() bool { return e.timeout }

// Canceled reports whether the caller cancelled the context.
func (e *TransportError) Canceled() bool { return e.canceled }

// TooManyRedirectsError is returned when following another redirect would
// exceed the configured limit. Response is the last response received, the
// redirect that was not followed.
type TooManyRedirectsError struct {
	Limit    int
	Response *response.Response
}

func (e *TooManyRedirectsError) Error() string {
	if e.Response == nil {
		return fmt.Sprintf("too many redirects: limit %d", e.Limit)
	}
	return fmt.Sprintf("too many redirects: limit %d exceeded at %d %s (Location: %s)",
		e.Limit, e.Response.StatusCode, e.Response.URL, e.Response.Header.Get("Location"))
}

// Code implements coder.
func (e *TooManyRedirectsError) Code() Code { return CodeTooManyRedirects }

// StatusError is produced by a response check for an unacceptable status.
type StatusError struct {
	StatusCode int
	Status     string
	Response   *response.Response
}

// Status creates a StatusError for r.
func Status(r *response.Response) *StatusError {
	return &StatusError{StatusCode: r.StatusCode, Status: r.Status, Response: r}
}

func (e *StatusError) Error() string {
	if e.Response != nil && e.Response.URL != nil {
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.Response.URL)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Code implements coder.
func (e *StatusError) Code() Code { return CodeStatus }

// HookError is returned when a request or response hook rejects a hop.
// Stage is "request" or "response".
type HookError struct {
	Stage string
	Hop   int
	Err   error
}

// Hook wraps err as a HookError for stage.
func Hook(stage string, hop int, err error) *HookError {
	return &HookError{Stage: stage, Hop: hop, Err: err}
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed: %v", e.Stage, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Code implements coder.
func (e *HookError) Code() Code { return CodeHook }

// JSONError is the error returned by response.AsJSON and Response.AsValue.
type JSONError = response.JSONError

type coder interface {
	Code() Code
}

// CodeOf returns the classification of the first classified error in err's
// chain, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if IsJSON(err) {
		return CodeJSON
	}
	var c coder
	if stdErrors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return stdErrors.As(err, &e)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var e *TransportError
	return stdErrors.As(err, &e)
}

// IsTimeout reports whether err is a TransportError caused by an expired deadline.
func IsTimeout(err error) bool {
	var e *TransportError
	return stdErrors.As(err, &e) && e.Timeout()
}

// IsCanceled reports whether err is a TransportError caused by cancellation.
func IsCanceled(err error) bool {
	var e *TransportError
	return stdErrors.As(err, &e) && e.Canceled()
}

// IsTooManyRedirects reports whether err is a TooManyRedirectsError.
func IsTooManyRedirects(err error) bool {
	var e *TooManyRedirectsError
	return stdErrors.As(err, &e)
}

// IsJSON reports whether err is a JSONError.
func IsJSON(err error) bool {
	var e *JSONError
	return stdErrors.As(err, &e)
}

// IsHook reports whether err is a HookError.
func IsHook(err error) bool {
	var e *HookError
	return stdErrors.As(err, &e)
}

// IsStatus reports whether err is a StatusError.
func IsStatus(err error) bool {
	var e *StatusError
	return stdErrors.As(err, &e)
}
