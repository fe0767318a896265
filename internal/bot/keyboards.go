package bot

import (
	tele "gopkg.in/telebot.v4"

	"stickerdex/core/telegram/keyboard"
	"stickerdex/internal/callback"
	"stickerdex/internal/moderation"
)

// markupFrom turns engine-built button rows into telebot markup. The
// encoded data goes on the wire untouched so the callback router can
// decode it back.
func markupFrom(kb moderation.Keyboard) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		r := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			r = append(r, tele.InlineButton{Text: btn.Label, Data: btn.Data})
		}
		rows = append(rows, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// taggingMarkup sits under every session prompt.
func taggingMarkup(fileID string) *tele.ReplyMarkup {
	return markupFrom(moderation.Keyboard{
		{
			{Label: "Stop tagging", Data: callback.Encode(callback.ActionCancel, fileID, callback.OutcomeOK)},
			{Label: "Skip this sticker", Data: callback.Encode(callback.ActionNext, fileID, callback.OutcomeOK)},
		},
	})
}

// fixMarkup replaces a handled prompt's buttons once its tags landed.
func fixMarkup(fileID string) *tele.ReplyMarkup {
	return markupFrom(moderation.Keyboard{
		{{Label: "Fix this sticker's tags", Data: callback.Encode(callback.ActionEditSticker, fileID, callback.OutcomeOK)}},
	})
}

// stickerReplyMarkup answers a sticker sent outside a session.
func stickerReplyMarkup(setName, fileID string) *tele.ReplyMarkup {
	return markupFrom(moderation.Keyboard{
		{{Label: "Tag this sticker set.", Data: callback.Encode(callback.ActionTagSet, setName, callback.OutcomeOK)}},
		{{Label: "Fix this sticker's tags", Data: callback.Encode(callback.ActionEditSticker, fileID, callback.OutcomeOK)}},
	})
}

// mainMarkup is the persistent reply keyboard for regular users.
func mainMarkup() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{"/tag_set", "/tag_random"},
		[]string{"/language", "/cancel"},
	)
}

// adminMarkup extends the main keyboard with the review queues.
func adminMarkup() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{"/tag_set", "/tag_random"},
		[]string{"/language", "/cancel"},
		[]string{"/tasks", "/newsfeed"},
	)
}
