package router

import (
	"log/slog"
	"time"

	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/callbacks"
	"stickerdex/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises how button presses find their handler.
// KeyFunc extracts the registry key from raw callback data; the default
// understands both telebot's "\funique|payload" framing and the bot's
// hand-encoded "action:payload:outcome" strings.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	KeyFunc  func(cb *tele.Callback) (key string, payload string)
}

// CallbackRoute routes button presses through the registry. The press
// is acknowledged up front so the client stops its spinner even when
// the handler goes on to hit the database.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	parse := opts.KeyFunc
	if parse == nil {
		parse = callbacks.ParseCallbackData
	}
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		key, _ := parse(cb)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		_ = c.Respond()

		fn, ok := reg.GetCallback(key)
		if !ok || fn == nil {
			fn = reg.CallbackNotFound()
			if fn == nil {
				fn = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return handleWithSummary(c, name, start, "", "", func() error {
			if fn == nil {
				return nil
			}
			return fn(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
