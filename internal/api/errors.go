package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed API call.
type Kind int

const (
	// NetworkOrServerError covers transport failures, 5xx responses and bodies that could not be decoded.
	NetworkOrServerError Kind = iota
	// AuthenticationFailed is a rejected credential exchange at auth/token.
	AuthenticationFailed
	// SessionExpired is a 401 on a bearer-authenticated call.
	SessionExpired
	// ValidationFailed is a 4xx rejection of submitted data.
	ValidationFailed
	// Forbidden is a 403 on an authenticated call.
	Forbidden
	// NotFound is a 404 for the addressed resource.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case AuthenticationFailed:
		return "authentication failed"
	case SessionExpired:
		return "session expired"
	case ValidationFailed:
		return "validation failed"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	default:
		return "network or server error"
	}
}

// Sentinels for errors.Is; an *Error matches the sentinel of its Kind.
var (
	ErrNetworkOrServer      = errors.New("network or server error")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSessionExpired       = errors.New("session expired")
	ErrValidationFailed     = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
)

func (k Kind) sentinel() error {
	switch k {
	case AuthenticationFailed:
		return ErrAuthenticationFailed
	case SessionExpired:
		return ErrSessionExpired
	case ValidationFailed:
		return ErrValidationFailed
	case Forbidden:
		return ErrForbidden
	case NotFound:
		return ErrNotFound
	default:
		return ErrNetworkOrServer
	}
}

// Error is a failed API call. Message is human readable and taken from the
// server's detail field when one was sent.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap exposes the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinel.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of err, or NetworkOrServerError when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return NetworkOrServerError
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 401
}

// classify maps an HTTP failure status to a Kind for ordinary calls.
func classify(status int) Kind {
	switch {
	case status == 401:
		return SessionExpired
	case status == 403:
		return Forbidden
	case status == 404:
		return NotFound
	case status >= 400 && status < 500:
		return ValidationFailed
	default:
		return NetworkOrServerError
	}
}

// parseDetail extracts the detail field from an error body. ok is false when
// the body is not a JSON object; an empty message with ok=true means the body
// parsed but carried no usable detail.
func parseDetail(body []byte) (message string, ok bool) {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	detail := envelope.Detail
	if len(detail) == 0 || string(detail) == "null" {
		return "", true
	}

	var text string
	if err := json.Unmarshal(detail, &text); err == nil {
		return strings.TrimSpace(text), true
	}

	// FastAPI validation errors: [{"loc": [...], "msg": "...", "type": "..."}]
	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			msg := strings.TrimSpace(item.Msg)
			if msg == "" {
				continue
			}
			if field := lastLoc(item.Loc); field != "" {
				msg = field + ": " + msg
			}
			parts = append(parts, msg)
		}
		return strings.Join(parts, "; "), true
	}

	var object map[string]any
	if err := json.Unmarshal(detail, &object); err == nil {
		for _, key := range []string{"message", "msg", "error"} {
			if s, isString := object[key].(string); isString && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	}
	return strings.TrimSpace(string(detail)), true
}

func lastLoc(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	switch v := loc[len(loc)-1].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int(v))
	}
	return ""
}

// responseError builds the *Error for a non-2xx response. fallback is used
// when the body is not JSON.
func responseError(op string, kind Kind, status int, body []byte, fallback string) *Error {
	message, ok := parseDetail(body)
	if !ok {
		message = fallback
	}
	if message == "" {
		message = fmt.Sprintf("server returned status %d", status)
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: message}
}
