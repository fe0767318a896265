package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/getsentry/sentry-go"
	tele "gopkg.in/telebot.v4"

	"stickerdex/core/logger"
	"stickerdex/core/telegram/sender"
	"stickerdex/internal/locales"
	"stickerdex/internal/models"
	"stickerdex/internal/moderation"
)

// Transport is the outbound side of the bot. Session and tagging code
// talk to it instead of telebot: prompt delivery is synchronous because
// the workflow needs the message id back, everything decorative rides
// the dispatcher queue.
type Transport struct {
	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	msgs       *locales.Messages
}

func NewTransport(bot *tele.Bot, dispatcher *sender.Dispatcher, msgs *locales.Messages) *Transport {
	return &Transport{bot: bot, dispatcher: dispatcher, msgs: msgs}
}

// SendText delivers plain text to a chat, synchronously.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := t.bot.Send(tele.ChatID(chatID), text)
	return err
}

// SendStickerPrompt shows the sticker, then its tag state with the
// tagging buttons. The returned id names the keyboard message so a
// later change can swap its buttons.
func (t *Transport) SendStickerPrompt(ctx context.Context, chatID int64, sticker models.Sticker, text string) (int, error) {
	to := tele.ChatID(chatID)
	if _, err := t.bot.Send(to, &tele.Sticker{File: tele.File{FileID: sticker.FileID}}); err != nil {
		return 0, fmt.Errorf("send sticker: %w", err)
	}
	msg, err := t.bot.Send(to, text, taggingMarkup(sticker.FileID))
	if err != nil {
		return 0, fmt.Errorf("send prompt: %w", err)
	}
	return msg.ID, nil
}

// MilestoneReached congratulates the user and leaves a breadcrumb in
// Sentry. Fire and forget.
func (t *Transport) MilestoneReached(ctx context.Context, userID int64, count int) {
	text := t.msgs.Milestone(count)
	t.enqueue(ctx, "send.milestone", "sendMessage", func() error {
		_, err := t.bot.Send(tele.ChatID(userID), text)
		return err
	})
	sentry.CaptureMessage(fmt.Sprintf("user %d reached %d changes", userID, count))
}

// RefreshFixKeyboard swaps a previous prompt's buttons for the fix
// affordance. Fire and forget; the prompt may have been deleted.
func (t *Transport) RefreshFixKeyboard(ctx context.Context, chatID int64, messageID int, stickerFileID string) {
	markup := fixMarkup(stickerFileID)
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	t.enqueue(ctx, "edit.fix_keyboard", "editMessageReplyMarkup", func() error {
		_, err := t.bot.EditReplyMarkup(stored, markup)
		return err
	})
}

// NotifyText delivers text through the dispatcher queue.
func (t *Transport) NotifyText(ctx context.Context, chatID int64, text string) {
	t.enqueue(ctx, "send.notify", "sendMessage", func() error {
		_, err := t.bot.Send(tele.ChatID(chatID), text)
		return err
	})
}

// NotifyMarkup delivers text with an inline keyboard through the
// dispatcher queue. Used to fan review cards out to maintenance chats.
func (t *Transport) NotifyMarkup(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) {
	t.enqueue(ctx, "send.review_card", "sendMessage", func() error {
		_, err := t.bot.Send(tele.ChatID(chatID), text, markup)
		return err
	})
}

// AnnounceSet drops a freshly imported set into a newsfeed chat: one
// example sticker followed by the review controls.
func (t *Transport) AnnounceSet(ctx context.Context, chatID int64, set models.StickerSet, sample models.Sticker) {
	text := fmt.Sprintf("%s (%s)", set.Title, set.Name)
	markup := markupFrom(moderation.NewsfeedKeyboard(set))
	t.enqueue(ctx, "send.newsfeed", "sendMessage", func() error {
		to := tele.ChatID(chatID)
		if _, err := t.bot.Send(to, &tele.Sticker{File: tele.File{FileID: sample.FileID}}); err != nil {
			return err
		}
		_, err := t.bot.Send(to, text, markup)
		return err
	})
}

// StickerSet fetches the set definition from Telegram.
func (t *Transport) StickerSet(name string) (*tele.StickerSet, error) {
	return t.bot.StickerSet(name)
}

func (t *Transport) enqueue(ctx context.Context, action, endpoint string, run func() error) {
	if t.dispatcher == nil {
		if err := run(); err != nil {
			logger.TG.Warn("outbound call failed",
				slog.String("event", "tg.send"),
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	if err := t.dispatcher.Enqueue(ctx, action, endpoint, run); err != nil {
		logger.TG.Warn("enqueue failed, dropping",
			slog.String("event", "tg.send"),
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
	}
}
