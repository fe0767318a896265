package router

import (
	"time"

	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// StickerRoute wraps an incoming-sticker handler with the shared
// recover/logger chain and the handler summary line.
func StickerRoute(handler tele.HandlerFunc) tg.Route {
	h := func(c tele.Context) error {
		start := time.Now()
		return handleWithSummary(c, "sticker", start, "", "", func() error {
			return handler(c)
		})
	}
	return tg.Route{
		Endpoint: tele.OnSticker,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
	}
}

// QueryRoute wraps the inline-query handler. Answers go straight back to
// Telegram rather than through the send dispatcher, so only the logging
// chain applies here.
func QueryRoute(handler tele.HandlerFunc) tg.Route {
	h := func(c tele.Context) error {
		start := time.Now()
		return handleWithSummary(c, "inline_query", start, "", "", func() error {
			return handler(c)
		})
	}
	return tg.Route{
		Endpoint: tele.OnQuery,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
	}
}
