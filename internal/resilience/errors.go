package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// retryableStatusFragments match the "unexpected status NNN" errors our API
// clients produce for throttling and server-side failures.
var retryableStatusFragments = []string{
	"status 408",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// networkFragments match wrapped transport errors that carry no typed cause.
var networkFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
}

// IsTransient reports whether an error is worth retrying: a network
// timeout, a dropped connection, or a throttling/5xx response from one of
// our API clients. Everything else is treated as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, f := range retryableStatusFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	for _, f := range networkFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
