package bot

import (
	"errors"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"stickerdex/core/logger"
	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/internal/models"
	"stickerdex/internal/session"
	"stickerdex/internal/storage"
)

// handleSticker makes any incoming sticker the chat's current one. An
// unknown or half-imported set gets queued for import instead; the
// sender is told to come back once it landed.
func (a *App) handleSticker(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Sticker == nil {
		return nil
	}
	incoming := msg.Sticker

	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	msgs := a.userMsgs(c)

	if incoming.SetName == "" {
		logger.TG.Debug("sticker without a set ignored",
			slog.String("event", "tg.sticker"),
			slog.Int64("chat_id", c.Chat().ID),
		)
		return nil
	}

	set, created, err := a.store.GetOrCreateStickerSet(ctx, incoming.SetName, "")
	if err != nil {
		return a.fail(c, err)
	}
	if created || !set.Complete {
		a.importer.RequestImport(ctx, c.Chat().ID, set.Name)
		return tghelpers.SendText(c, msgs.SetNotReady(set.Name))
	}

	sticker, err := a.store.GetSticker(ctx, incoming.FileID)
	if errors.Is(err, storage.ErrNotFound) {
		// The set grew since its import; refresh it.
		a.importer.RequestImport(ctx, c.Chat().ID, set.Name)
		return tghelpers.SendText(c, msgs.SetNotReady(set.Name))
	}
	if err != nil {
		return a.fail(c, err)
	}

	if err := a.sessions.SetContext(ctx, c.Chat().ID, sticker.FileID); err != nil {
		return a.fail(c, err)
	}

	scopeDefault := user.DefaultLanguage && set.DefaultLanguage
	tags, err := a.store.StickerTagsForLanguage(ctx, sticker.FileID, scopeDefault)
	if err != nil {
		return a.fail(c, err)
	}
	text := session.PromptText(msgs, set, tags, scopeDefault, true)
	return c.Reply(text, stickerReplyMarkup(set.Name, sticker.FileID))
}

// handleText feeds free text into the tagging session. Outside a
// session the text is ignored; so is anything from a reverted user.
func (a *App) handleText(c tele.Context) error {
	msg := c.Message()
	if msg == nil || strings.TrimSpace(c.Text()) == "" {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	if user.Reverted {
		return nil
	}

	chatID := c.Chat().ID
	advance, err := a.sessions.HandleText(ctx, chatID, user, msg.ID, c.Text())
	if err != nil {
		return a.fail(c, err)
	}
	if !advance {
		return nil
	}

	err = a.sessions.Advance(ctx, chatID, user)
	if errors.Is(err, session.ErrNoEligibleSticker) {
		return nil
	}
	if err != nil {
		return a.fail(c, err)
	}
	return nil
}

// UnknownText routes leftover text into the session machinery.
func (a *App) UnknownText() tele.HandlerFunc {
	return a.handleText
}

// UnknownDocument ignores documents; the bot only works with stickers.
func (a *App) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		logger.TG.Debug("document ignored",
			slog.String("event", "tg.document"),
			slog.Int64("chat_id", c.Chat().ID),
		)
		return nil
	}
}

// UnknownCallback logs presses of buttons no longer wired to anything,
// usually from keyboards that outlived a deploy. The router already
// answered the query, so the spinner is gone either way.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		data := ""
		if cb := c.Callback(); cb != nil {
			data = cb.Data
		}
		logger.TG.Warn("unroutable callback",
			slog.String("event", "tg.callback"),
			slog.String("data", logger.SanitizeLimit(data, 64)),
		)
		return nil
	}
}
