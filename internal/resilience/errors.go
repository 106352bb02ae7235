package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Retrier is implemented by errors that know whether repeating the call
// may succeed.
type Retrier interface {
	Transient() bool
}

// IsTransient reports whether err is worth retrying. Errors that implement
// Retrier decide for themselves; otherwise network timeouts, per-attempt
// deadlines and connection-level failures count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var r Retrier
	if errors.As(err, &r) {
		return r.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
