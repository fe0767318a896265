package router

import (
	"time"

	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM is the slice of the state manager the text router needs.
// InProgress gets the whole update because a prompt can be pinned to a
// chat, not just to the sender.
type FSM interface {
	InProgress(c tele.Context) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions holds the last-resort handlers for text and document
// updates nothing else claimed.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes routes plain text and documents. Text resolution order: an
// open prompt wins, then registered commands, then the registry's text
// fallback, then UnknownText. Documents only matter while a prompt is
// open; otherwise they draw the unexpected-document reply.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	run := func(c tele.Context, name string, start time.Time, h tele.HandlerFunc) error {
		return handleWithSummary(c, name, start, "", "", func() error { return h(c) })
	}

	textHandler := func(c tele.Context) error {
		start := time.Now()

		if fsm != nil && fsm.InProgress(c) {
			return run(c, "fsm", start, fsm.ManagerHandler)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return run(c, normalizeHandlerName(key), start, cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return run(c, "fallback", start, fb)
			}
		}
		if opts.UnknownText != nil {
			return run(c, "unknown_text", start, opts.UnknownText)
		}
		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()

		if fsm != nil && fsm.InProgress(c) {
			return run(c, "fsm_document", start, fsm.ManagerHandler)
		}
		if opts.UnknownDocument != nil {
			return run(c, "unexpected_document", start, opts.UnknownDocument)
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(textHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(docHandler)},
	}
}
