package bot

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"stickerdex/internal/callback"
	"stickerdex/internal/models"
	"stickerdex/internal/moderation"
)

func TestMarkupFromKeepsEncodedData(t *testing.T) {
	kb := moderation.NewsfeedKeyboard(models.StickerSet{Name: "cool_set"})
	markup := markupFrom(kb)

	require.Len(t, markup.InlineKeyboard, len(kb))
	for i, row := range kb {
		require.Len(t, markup.InlineKeyboard[i], len(row))
		for j, btn := range row {
			require.Equal(t, btn.Label, markup.InlineKeyboard[i][j].Text)
			require.Equal(t, btn.Data, markup.InlineKeyboard[i][j].Data,
				"encoded data must reach the wire untouched")
		}
	}
}

// Every button the bot renders must decode back through the callback
// router, or its press lands in the not-found fallback.
func TestBuiltinMarkupsDecode(t *testing.T) {
	markups := map[string]*tele.ReplyMarkup{
		"tagging":       taggingMarkup("s1"),
		"fix":           fixMarkup("s1"),
		"sticker reply": stickerReplyMarkup("cool_set", "s1"),
	}
	for name, markup := range markups {
		for _, row := range markup.InlineKeyboard {
			for _, btn := range row {
				if _, err := callback.Decode(btn.Data); err != nil {
					t.Fatalf("%s markup: button %q carries undecodable data %q: %v",
						name, btn.Text, btn.Data, err)
				}
			}
		}
	}
}
