package openrouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError mirrors the error object OpenRouter returns in failure bodies:
// {"error": {"message", "code", "metadata": {"provider_name", "raw"}}}.
type APIError struct {
	Message  string          `json:"message"`
	Code     json.RawMessage `json:"code,omitempty"`
	Metadata *ErrorMetadata  `json:"metadata,omitempty"`
}

// ErrorMetadata carries upstream provider details when OpenRouter supplies them.
type ErrorMetadata struct {
	ProviderName string          `json:"provider_name"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// CodeString renders the error code whether it was sent as a number or string.
func (e *APIError) CodeString() string {
	if e == nil || len(e.Code) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return strings.TrimSpace(s)
	}
	trimmed := strings.TrimSpace(string(e.Code))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// RawString renders metadata.raw, unquoting plain strings and compacting JSON.
func (e *APIError) RawString() string {
	if e == nil || e.Metadata == nil || len(e.Metadata.Raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Metadata.Raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Metadata.Raw); err != nil {
		return strings.TrimSpace(string(e.Metadata.Raw))
	}
	if out := buf.String(); out != "null" {
		return out
	}
	return ""
}

// StatusError reports a non-2xx response (or an error object inside a 2xx body).
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	API        *APIError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter request: http %d: %s", e.StatusCode, e.Detail())
}

// ProviderName returns the upstream provider named in the error metadata.
func (e *StatusError) ProviderName() string {
	if e == nil || e.API == nil || e.API.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(e.API.Metadata.ProviderName)
}

// Code returns the upstream error code, if any.
func (e *StatusError) Code() string {
	if e == nil {
		return ""
	}
	return e.API.CodeString()
}

// Detail returns the upstream message with metadata.raw appended, falling back
// to an excerpt of the raw body when the error object is absent.
func (e *StatusError) Detail() string {
	if e == nil {
		return ""
	}
	if e.API != nil && strings.TrimSpace(e.API.Message) != "" {
		detail := strings.TrimSpace(e.API.Message)
		if raw := e.API.RawString(); raw != "" {
			detail = fmt.Sprintf("%s (%s)", detail, Snippet(raw))
		}
		return detail
	}
	if strings.TrimSpace(e.Body) == "" {
		return http.StatusText(e.StatusCode)
	}
	return Snippet(e.Body)
}

// TransportError wraps network-level failures (timeouts, resets, DNS).
type TransportError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("openrouter %s: http error (timeout=%s): %v", e.Op, e.Timeout, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether the underlying failure was a timeout.
func (e *TransportError) IsTimeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

func newStatusError(status int, body []byte, retryAfter string) *StatusError {
	statusErr := &StatusError{
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
	}
	statusErr.RetryAfter, _ = parseRetryAfter(retryAfter)
	var payload struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		statusErr.API = payload.Error
	}
	return statusErr
}

func embeddedStatusError(apiErr *APIError, body []byte) *StatusError {
	status := http.StatusBadGateway
	if code, err := strconv.Atoi(apiErr.CodeString()); err == nil && code >= http.StatusBadRequest && code < 600 {
		status = code
	}
	return &StatusError{
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
		API:        apiErr,
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// Snippet collapses whitespace and bounds content for log and error messages.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := replacer.Replace(trimmed)
	clean = strings.Join(strings.Fields(clean), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
