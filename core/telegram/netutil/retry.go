// Package netutil classifies transport errors from the Telegram API.
package netutil

import (
	"errors"
	"net"
	"net/url"
)

// ShouldRetry reports whether the error looks transient: timeouts,
// temporary conditions and dial failures. Anything else, including HTTP
// status errors, is permanent as far as resending is concerned.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary()) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
		if nested, ok := opErr.Err.(net.Error); ok && (nested.Timeout() || nested.Temporary()) {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}
