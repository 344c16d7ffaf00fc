package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"orbridge/internal/services"
	"orbridge/internal/services/openrouter"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindProviderAtCapacity    Kind = "provider_at_capacity"
	KindRateLimited           Kind = "rate_limited"
	KindUnsupportedImageInput Kind = "unsupported_image_input"
	KindUpstreamHTTP          Kind = "upstream_http"
	KindTransport             Kind = "transport"
	KindAuthentication        Kind = "authentication"
)

// Sentinels matched by errors.Is against any *Error of the corresponding kind.
var (
	ErrProviderAtCapacity    = errors.New("provider at capacity")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnsupportedImageInput = errors.New("model does not support image input")
	ErrUpstreamHTTP          = errors.New("upstream http error")
	ErrTransport             = errors.New("transport failure")
	ErrAuthentication        = errors.New("authentication failed")
)

const unsupportedImageMarker = "support image input"

// Error is the terminal failure of a dispatch. Message is safe to surface to
// end users verbatim.
type Error struct {
	Kind       Kind
	Message    string
	Model      string
	Provider   string
	Code       string
	Status     int
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 3)
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if marker := e.marker(); marker != nil {
		errs = append(errs, marker)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindProviderAtCapacity:
		return ErrProviderAtCapacity
	case KindRateLimited:
		return ErrRateLimited
	case KindUnsupportedImageInput:
		return ErrUnsupportedImageInput
	case KindUpstreamHTTP:
		return ErrUpstreamHTTP
	case KindTransport:
		return ErrTransport
	case KindAuthentication:
		return ErrAuthentication
	default:
		return nil
	}
}

func (e *Error) marker() error {
	switch e.Kind {
	case KindProviderAtCapacity, KindRateLimited:
		return services.ErrTransient
	case KindUnsupportedImageInput:
		return services.ErrValidation
	case KindAuthentication:
		return services.ErrConfiguration
	case KindTransport:
		var transportErr *openrouter.TransportError
		if errors.As(e.Err, &transportErr) && transportErr.IsTimeout() {
			return services.ErrTimeout
		}
		return services.ErrExternalTool
	default:
		return services.ErrExternalTool
	}
}

// HTTPStatus maps an error to the status a host API should answer with.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	return services.FailureStatus(err)
}

// classify converts the last upstream failure into a terminal *Error.
func classify(err error, model string, attempts int) *Error {
	var statusErr *openrouter.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr, model, attempts)
	}
	var transportErr *openrouter.TransportError
	if errors.As(err, &transportErr) {
		return &Error{
			Kind:     KindTransport,
			Message:  fmt.Sprintf("Error talking to API: %v", transportErr.Err),
			Model:    model,
			Attempts: attempts,
			Err:      err,
		}
	}
	return &Error{
		Kind:     KindUpstreamHTTP,
		Message:  fmt.Sprintf("Error talking to API: %v", err),
		Model:    model,
		Attempts: attempts,
		Err:      err,
	}
}

func classifyStatus(statusErr *openrouter.StatusError, model string, attempts int) *Error {
	out := &Error{
		Model:      model,
		Provider:   statusErr.ProviderName(),
		Code:       statusErr.Code(),
		Status:     statusErr.StatusCode,
		Attempts:   attempts,
		RetryAfter: statusErr.RetryAfter,
		Err:        statusErr,
	}
	detail := strings.TrimRight(statusErr.Detail(), ".")
	switch {
	case statusErr.StatusCode == http.StatusServiceUnavailable:
		out.Kind = KindProviderAtCapacity
		out.Message = capacityMessage(out.Provider)
	case statusErr.StatusCode == http.StatusTooManyRequests:
		out.Kind = KindRateLimited
		out.Message = rateLimitMessage(out.Provider, detail, statusErr.RetryAfter)
	case isUnsupportedImage(statusErr):
		out.Kind = KindUnsupportedImageInput
		out.Message = fmt.Sprintf(
			"Model %s does not support images. Please configure a vision-capable model "+
				"(e.g., openai/gpt-4o-mini, anthropic/claude-3.5-haiku, google/gemini-2.5-flash).", model)
	case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
		out.Kind = KindAuthentication
		out.Message = fmt.Sprintf("Authentication with OpenRouter failed (%d): %s. Check the configured API key.",
			statusErr.StatusCode, detail)
	default:
		out.Kind = KindUpstreamHTTP
		out.Message = fmt.Sprintf("API error (%d): %s", statusErr.StatusCode, detail)
	}
	return out
}

func capacityMessage(provider string) string {
	if provider == "" {
		return "The upstream provider is temporarily at capacity. " +
			"Please try again in a few minutes or select a different model."
	}
	return fmt.Sprintf("Provider '%s' is temporarily at capacity. "+
		"Please try again in a few minutes or select a different model.", provider)
}

func rateLimitMessage(provider, detail string, retryAfter time.Duration) string {
	var b strings.Builder
	if provider != "" {
		fmt.Fprintf(&b, "Rate limited by provider '%s': %s.", provider, detail)
	} else {
		fmt.Fprintf(&b, "Rate limit exceeded: %s.", detail)
	}
	b.WriteString(" This is usually temporary; please wait before retrying or upgrade to a paid plan.")
	if retryAfter > 0 {
		fmt.Fprintf(&b, " Retry after %s.", retryAfter.Round(time.Second))
	}
	return b.String()
}

func isUnsupportedImage(statusErr *openrouter.StatusError) bool {
	if statusErr.StatusCode != http.StatusNotFound && statusErr.StatusCode != http.StatusBadRequest {
		return false
	}
	text := strings.ToLower(statusErr.Detail() + " " + statusErr.Body)
	return strings.Contains(text, unsupportedImageMarker)
}
