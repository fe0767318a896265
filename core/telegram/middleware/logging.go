package middleware

import (
	"log/slog"
	"sync"
	"time"

	"stickerdex/core/logger"
	"stickerdex/core/telegram/callbacks"
	tghelpers "stickerdex/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// One update can travel several router branches (text, sticker, inline
// query), each carrying this middleware. The receipt line must appear
// once per update, so processed ids are remembered for a short window.
var (
	seenMu       sync.Mutex
	seenUpdates  = make(map[int]time.Time)
	dedupeWindow = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	seenMu.Lock()
	defer seenMu.Unlock()
	for id, ts := range seenUpdates {
		if now.Sub(ts) > dedupeWindow {
			delete(seenUpdates, id)
		}
	}
	if _, ok := seenUpdates[updateID]; ok {
		return true
	}
	seenUpdates[updateID] = now
	return false
}

// LoggerMiddleware mints the request id, stores the logging context for
// downstream handlers, and emits one debug receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		// Trace mode logs every receipt; otherwise the sample gate
		// decides.
		wantReceipt := logger.TraceEnabled() || logger.ShouldSampleDebug()
		if wantReceipt && !alreadyLogged(upd.ID) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug,
				"update.received", receiptAttrs(c, rid)...)
		}

		return next(c)
	}
}

func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", upd.ID),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs,
			slog.Int64("chat_id", chat.ID),
			slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Query != nil:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(upd.Query.Text, 256)))
	case upd.Message != nil:
		if upd.Message.Sticker != nil {
			attrs = append(attrs, slog.String("sticker", upd.Message.Sticker.UniqueID))
		} else if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
