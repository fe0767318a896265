package telegram

import (
	"net"
	"net/http"
	"time"

	"stickerdex/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second

	// minResponseHeaderWait covers ordinary API calls; getUpdates long
	// polls hold the response headers for the whole poll window, so the
	// wait is widened below whenever a poll timeout is configured.
	minResponseHeaderWait = 30 * time.Second
	headerWaitMargin      = 10 * time.Second
	bodyReadBudget        = 30 * time.Second
)

// buildHTTPClient returns the client behind every Bot API call,
// including the long poller. longPoll is the configured getUpdates
// window; zero means webhook mode or defaults.
func buildHTTPClient(longPoll time.Duration) *http.Client {
	headerWait := minResponseHeaderWait
	if longPoll > 0 && longPoll+headerWaitMargin > headerWait {
		headerWait = longPoll + headerWaitMargin
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: headerWait,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: headerWait + bodyReadBudget,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// retryTransport retries transient network failures with a linear
// backoff. Requests whose body cannot be replayed are never retried.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	var lastErr error
	attempts := t.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		curr, ok := requestForAttempt(req, attempt)
		if !ok {
			return nil, lastErr
		}

		resp, err := base.RoundTrip(curr)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}
		if err := sleepBackoff(req, t.backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func requestForAttempt(req *http.Request, attempt int) (*http.Request, bool) {
	if attempt == 1 {
		return req, true
	}
	if req.Body != nil && req.GetBody == nil {
		return nil, false
	}
	curr := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false
		}
		curr.Body = body
	}
	return curr, true
}

func sleepBackoff(req *http.Request, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
