// Package sender runs the outbound queue for fire-and-forget Telegram
// calls: milestone congratulations, newsfeed review cards, keyboard
// refreshes. Workflow-critical sends stay synchronous in the handlers;
// everything queued here tolerates retry and reordering.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stickerdex/core/logger"
	"stickerdex/core/telegram/netutil"

	"go.uber.org/ratelimit"
	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed reports an enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull reports a saturated queue; the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options tunes the dispatcher. Zero values pick the defaults below.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the total time spent on one job including
	// backoff waits.
	MaxDuration time.Duration
	// SendRate caps outbound calls per second across all workers.
	// Telegram throttles bots around 30 messages per second globally.
	SendRate int
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher fans queued jobs out to a fixed worker pool. A shared rate
// limiter keeps the workers inside Telegram's global send budget.
type Dispatcher struct {
	opts    Options
	jobs    chan job
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	errs    atomic.Uint64
	limiter ratelimit.Limiter
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 30
	}

	d := &Dispatcher{
		opts:    opts,
		jobs:    make(chan job, opts.QueueSize),
		stop:    make(chan struct{}),
		limiter: ratelimit.New(opts.SendRate),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue accepts a job without blocking. The run closure must be
// idempotent when retries are configured.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns how many jobs exhausted their retries.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits for the workers to drain the queue.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", jobAttrs(ctx, j)...)

	attempt, err := d.attempt(deadlineCtx, ctx, j)
	elapsed := time.Since(start)
	if err != nil {
		d.errs.Add(1)
		logFailure(ctx, j, err, d.opts.MaxRetries+1, elapsed)
		return
	}
	if attempt > 1 {
		logger.Info(ctx, "tg.sender", "send.retry.success",
			append(jobAttrs(ctx, j),
				slog.Int("attempt", attempt),
				slog.Int("elapsed_ms", wholeMS(elapsed)),
			)...,
		)
	}
	logSuccess(ctx, j, attempt, elapsed)
}

// attempt runs the job until it succeeds, turns permanent, or the retry
// budget runs out. It returns the attempt number that succeeded.
func (d *Dispatcher) attempt(deadlineCtx, logCtx context.Context, j job) (int, error) {
	attempts := d.opts.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			return attempt, err
		}

		d.limiter.Take()
		err := j.run()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			return attempt, lastErr
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			return attempt, deadlineCtx.Err()
		case <-timer.C:
		}
		logger.Debug(logCtx, "tg.sender", "send.retry.backoff",
			append(jobAttrs(logCtx, j),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)...,
		)
	}
	return attempts, lastErr
}

func jobAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if updateID := logger.UpdateIDFrom(ctx); updateID != 0 {
		attrs = append(attrs, slog.Int("update_id", updateID))
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	if userID := logger.UserIDFrom(ctx); userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	return attrs
}

func logSuccess(ctx context.Context, j job, attempt int, elapsed time.Duration) {
	attrs := jobAttrs(ctx, j)
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempt", attempt))
	}
	attrs = append(attrs, slog.Int("elapsed_ms", wholeMS(elapsed)))
	logger.Debug(ctx, "tg.sender", "send.success", attrs...)
}

func logFailure(ctx context.Context, j job, err error, attempts int, elapsed time.Duration) {
	attrs := jobAttrs(ctx, j)
	attrs = append(attrs,
		slog.String("error", redactToken(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("elapsed_ms", wholeMS(elapsed)),
	)
	if attempts > 0 {
		attrs = append(attrs, slog.Int("attempts", attempts))
	}
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

func wholeMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(logger.RoundMS(d) / time.Millisecond)
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return "timeout"
		case opErr.Op == "dial":
			return "dial"
		case opErr.Op == "read" || opErr.Op == "write":
			if kind := classifyError(opErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatusFromError(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// redactToken strips bot tokens out of API error text before logging.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	// telebot renders unknown API errors as "... (404)"; pull the code
	// out of the tail.
	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[lastOpen+1 : lastClose])); convErr == nil {
			return code
		}
	}
	return 0
}
