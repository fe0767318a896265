package middleware

import (
	"log/slog"
	"runtime/debug"

	"stickerdex/core/logger"

	"github.com/getsentry/sentry-go"
	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware keeps a panicking handler from taking the poller
// down. The panic is reported to Sentry (when a DSN is configured) and
// logged with its stack; the update is dropped.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			sentry.CurrentHub().Recover(r)
			attrs := []slog.Attr{
				slog.String("event", "tg.panic"),
				slog.Any("err", r),
				slog.Int("update_id", c.Update().ID),
			}
			if logger.StacksEnabled() {
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			}
			logger.TG.LogAttrs(logger.Background(), slog.LevelError, "panic recovered", attrs...)
		}()
		return next(c)
	}
}
