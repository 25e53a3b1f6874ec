package logging

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the client-generated id of an outbound API call.
const RequestIDHeader = "X-Request-ID"

// Transport is an http.RoundTripper that tags outbound requests with a request id
// and logs one entry per round trip under the "http" category.
type Transport struct {
	Base   http.RoundTripper
	Logger *Logger
}

// NewTransport wraps base (http.DefaultTransport when nil) with request logging.
func NewTransport(base http.RoundTripper, logger *Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, requestID)
	}

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	fields := map[string]any{
		"method": req.Method,
		"path":   req.URL.Path,
		"query":  req.URL.RawQuery,
	}
	headers := make(map[string]string)
	for name, values := range req.Header {
		if !isSensitiveHeader(name) {
			headers[name] = strings.Join(values, ", ")
		}
	}
	if len(headers) > 0 {
		fields["request_headers"] = headers
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     INFO.String(),
		Category:  "http",
		Fields:    fields,
		RequestID: requestID,
		Duration:  &duration,
	}
	if err != nil {
		entry.Level = ERROR.String()
		entry.Message = fmt.Sprintf("%s %s failed", req.Method, req.URL.Path)
		entry.Error = err.Error()
		t.emit(ERROR, entry)
		return nil, err
	}

	fields["status"] = resp.StatusCode
	entry.Message = fmt.Sprintf("%s %s %d", req.Method, req.URL.Path, resp.StatusCode)
	level := INFO
	if resp.StatusCode >= 400 {
		level = WARN
	}
	if resp.StatusCode >= 500 {
		level = ERROR
	}
	entry.Level = level.String()
	t.emit(level, entry)
	return resp, nil
}

func (t *Transport) emit(level Level, entry Entry) {
	if t.Logger == nil || !t.Logger.Enabled(level) {
		return
	}
	t.Logger.write(entry)
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "auth") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "cookie") ||
		strings.Contains(lower, "key") ||
		strings.Contains(lower, "secret")
}
