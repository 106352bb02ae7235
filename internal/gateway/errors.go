package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sells-group/health-intel/internal/resilience"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindRateLimitExceeded     Kind = "rate_limit_exceeded"
	KindNetworkTimeout        Kind = "network_timeout"
	KindInvalidInput          Kind = "invalid_input"
	KindNotFound              Kind = "not_found"
	KindProviderUnavailable   Kind = "provider_unavailable"
	KindClassificationSkipped Kind = "classification_skipped"
)

// Retriable reports whether failures of this kind may clear on a later attempt.
func (k Kind) Retriable() bool {
	switch k {
	case KindRateLimitExceeded, KindNetworkTimeout, KindProviderUnavailable:
		return true
	default:
		return false
	}
}

// KindForStatus maps an HTTP-like status code to an error kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimitExceeded
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindNetworkTimeout
	case code == http.StatusNotFound, code == http.StatusGone:
		return KindNotFound
	case code >= 400 && code < 500:
		return KindInvalidInput
	default:
		return KindProviderUnavailable
	}
}

// StatusCoder is implemented by transport errors that carry a status code.
type StatusCoder interface {
	HTTPStatus() int
}

// Error is the normalized failure shape every gateway call returns.
type Error struct {
	Provider   string `json:"provider"`
	Operation  string `json:"operation"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Retriable  bool   `json:"retriable"`
	StatusCode int    `json:"status_code,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s.%s: %s (status %d): %s", e.Provider, e.Operation, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %s", e.Provider, e.Operation, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Transient satisfies resilience.Retrier.
func (e *Error) Transient() bool { return e.Retriable }

// NewError builds a normalized error of the given kind.
func NewError(provider, operation string, kind Kind, message string) *Error {
	return &Error{
		Provider:  provider,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Retriable: kind.Retriable(),
	}
}

// Normalize converts any transport or resilience error into an *Error. An
// *Error found in err's chain is never modified.
func Normalize(provider, operation string, err error) *Error {
	if err == nil {
		return nil
	}

	var ge *Error
	if errors.As(err, &ge) {
		if ge.Provider != "" && ge.Operation != "" {
			return ge
		}
		// The original may be shared across coalesced callers; fill a copy.
		cp := *ge
		if cp.Provider == "" {
			cp.Provider = provider
		}
		if cp.Operation == "" {
			cp.Operation = operation
		}
		return &cp
	}

	out := &Error{Provider: provider, Operation: operation, Message: err.Error(), cause: err}

	var sc StatusCoder
	var netErr net.Error
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		out.Kind = KindProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindNetworkTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Kind = KindNetworkTimeout
	case errors.As(err, &sc):
		out.StatusCode = sc.HTTPStatus()
		out.Kind = KindForStatus(out.StatusCode)
	default:
		out.Kind = KindProviderUnavailable
	}
	out.Retriable = out.Kind.Retriable()
	return out
}

// shouldRetry retries retriable errors, except circuit rejections: the
// breaker already knows the provider is down.
func shouldRetry(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return resilience.IsTransient(err)
}
