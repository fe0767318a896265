package bot

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "stickerdex/core/telegram"
	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/internal/callback"
	"stickerdex/internal/models"
	"stickerdex/internal/moderation"
	"stickerdex/internal/session"
	"stickerdex/internal/storage"
)

// callbackKey maps encoded button data onto registry keys. Malformed
// data routes to the not-found fallback under its raw value.
func callbackKey(cb *tele.Callback) (string, string) {
	data, err := callback.Decode(strings.TrimSpace(cb.Data))
	if err != nil {
		return strings.TrimSpace(cb.Data), ""
	}
	return data.Action.String(), data.Payload
}

// registerCallbacks binds every button action. The router has already
// answered the callback query; handlers only mutate and re-render.
func (a *App) registerCallbacks(reg *tg.Registry) {
	register := func(action callback.Action, h func(tele.Context, callback.Data) error) {
		_ = reg.RegisterCallback(action.String(), func(c tele.Context) error {
			data, err := callback.Decode(strings.TrimSpace(c.Callback().Data))
			if err != nil {
				return err
			}
			return h(c, data)
		})
	}

	register(callback.ActionBanSet, a.cbSetFlag)
	register(callback.ActionNSFWSet, a.cbSetFlag)
	register(callback.ActionFurSet, a.cbSetFlag)
	register(callback.ActionNewsfeedNextSet, a.cbNewsfeedNext)
	register(callback.ActionVoteBan, a.cbVote)
	register(callback.ActionVoteNSFW, a.cbVote)
	register(callback.ActionUserRevert, a.cbUserRevert)
	register(callback.ActionAcceptLanguage, a.cbLanguage)
	register(callback.ActionSetLanguage, a.cbSetLanguage)
	register(callback.ActionTagSet, a.cbTagSet)
	register(callback.ActionNext, a.cbNext)
	register(callback.ActionCancel, a.cbCancel)
	register(callback.ActionEditSticker, a.cbEditSticker)
}

// editMarkup swaps the tapped message's buttons in place. Telegram
// rejects an edit that changes nothing; a repeated press lands on the
// state it asked for, so that rejection is fine to drop.
func editMarkup(c tele.Context, markup *tele.ReplyMarkup) error {
	cb := c.Callback()
	if cb == nil || cb.Message == nil {
		return nil
	}
	err := c.Edit(markup)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// cbSetFlag applies a ban/nsfw/furry toggle from a newsfeed card.
func (a *App) cbSetFlag(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)
	set, err := a.moderation.ToggleSetFlag(ctx, data.Action, data.Payload, data.Outcome)
	if err != nil {
		return err
	}
	return editMarkup(c, markupFrom(moderation.NewsfeedKeyboard(set)))
}

// cbNewsfeedNext closes one set review and serves the next card.
func (a *App) cbNewsfeedNext(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)

	next, err := a.moderation.ReviewNext(ctx, data.Payload)
	if err != nil {
		return err
	}

	// The reviewed card loses its Next button.
	reviewed, err := a.store.GetStickerSet(ctx, data.Payload)
	if err == nil {
		if err := editMarkup(c, markupFrom(moderation.NewsfeedKeyboard(reviewed))); err != nil {
			return err
		}
	}

	if next == nil {
		return tghelpers.SendText(c, a.userMsgs(c).NoOpenTasks())
	}
	return a.sendNewsfeedCard(ctx, c, *next)
}

// cbVote applies a verdict toggle on a reported set.
func (a *App) cbVote(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)
	id, err := data.PayloadUUID()
	if err != nil {
		return err
	}
	task, set, err := a.moderation.ResolveVote(ctx, data.Action, id, data.Outcome)
	if err != nil {
		return err
	}
	return editMarkup(c, markupFrom(moderation.VoteKeyboard(task, set)))
}

// cbUserRevert bans a user and rolls their changes back, or undoes
// exactly that.
func (a *App) cbUserRevert(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)
	id, err := data.PayloadUUID()
	if err != nil {
		return err
	}
	task, user, err := a.moderation.ResolveUserRevert(ctx, id, data.Outcome)
	if err != nil {
		return err
	}
	return editMarkup(c, markupFrom(moderation.UserRevertKeyboard(task, user)))
}

// cbLanguage accepts or declines a proposed tagging language.
func (a *App) cbLanguage(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)
	id, err := data.PayloadUUID()
	if err != nil {
		return err
	}
	task, err := a.moderation.ResolveLanguage(ctx, id, data.Outcome)
	if err != nil {
		return err
	}
	return editMarkup(c, markupFrom(moderation.LanguageKeyboard(task)))
}

// cbSetLanguage accepts or declines a language proposed for a set.
func (a *App) cbSetLanguage(c tele.Context, data callback.Data) error {
	ctx := tghelpers.BuildContext(c)
	id, err := data.PayloadUUID()
	if err != nil {
		return err
	}
	task, set, err := a.moderation.ResolveSetLanguage(ctx, id, data.Outcome)
	if err != nil {
		return err
	}
	return editMarkup(c, markupFrom(moderation.SetLanguageKeyboard(task, set)))
}

// cbTagSet starts tagging the set named under a sticker reply.
func (a *App) cbTagSet(c tele.Context, data callback.Data) error {
	if c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}
	return a.startSetSession(ctx, c, user, data.Payload)
}

// cbNext skips the prompted sticker. The tapped prompt keeps a way back
// to the skipped sticker through a fix button.
func (a *App) cbNext(c tele.Context, data callback.Data) error {
	if c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}

	chatID := c.Chat().ID
	chat, err := a.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.TagMode == models.ModeNone {
		return tghelpers.SendText(c, a.userMsgs(c).NotInSession())
	}
	skipped := chat.CurrentSticker()

	err = a.sessions.Advance(ctx, chatID, user)
	if err != nil && !errors.Is(err, session.ErrNoEligibleSticker) {
		return err
	}

	if skipped != "" && c.Callback().Message != nil {
		a.transport.RefreshFixKeyboard(ctx, chatID, c.Callback().Message.ID, skipped)
	}
	return nil
}

// cbCancel stops the session from a prompt button.
func (a *App) cbCancel(c tele.Context, data callback.Data) error {
	if c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}
	a.clearAwait(user.ID)
	return a.cancelSession(ctx, c, user)
}

// cbEditSticker reopens tagging for an already handled sticker.
func (a *App) cbEditSticker(c tele.Context, data callback.Data) error {
	if c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}

	err = a.sessions.FixSticker(ctx, c.Chat().ID, user, data.Payload)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, a.userMsgs(c).StickerUnknown())
	}
	return err
}
