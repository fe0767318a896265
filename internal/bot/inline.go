package bot

import (
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"stickerdex/core/logger"
	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/core/telegram/ui"
	"stickerdex/internal/models"
	"stickerdex/internal/search"
)

// Inline answers stay cacheable only briefly: tags move under the
// cached results all day long.
const inlineCacheSeconds = 5

// handleQuery answers inline searches. Result ids are page positions
// rather than file ids; Telegram caps ids at 64 bytes, which long file
// ids blow past.
func (a *App) handleQuery(c tele.Context) error {
	query := c.Query()
	if query == nil {
		return nil
	}

	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}

	parsed := search.Parse(query.Text)
	if parsed.Empty() {
		return c.Answer(&tele.QueryResponse{
			Results:    tele.Results{},
			CacheTime:  inlineCacheSeconds,
			IsPersonal: true,
		})
	}

	offset := search.ParseOffset(query.Offset)
	start := time.Now()
	hits, err := a.store.SearchStickers(ctx, parsed.Params(user.DefaultLanguage, offset, a.cfg.Bot.InlinePageSize))
	if err != nil {
		return err
	}

	logger.Search.Info("inline search",
		slog.String("event", "search.query"),
		slog.Int("terms", len(parsed.Terms)),
		slog.Bool("nsfw", parsed.NSFW),
		slog.Bool("furry", parsed.Furry),
		slog.Int("offset", offset),
		slog.Int("results", len(hits)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	results := make(tele.Results, 0, len(hits)+1)
	for i, hit := range hits {
		results = append(results, ui.NewCachedStickerResult(strconv.Itoa(offset+i), hit.FileID))
	}
	if len(results) == 0 && offset == 0 {
		none := a.userMsgs(c).NoSearchResults()
		results = append(results, ui.NewSimpleArticleResult("0", none, none))
	}

	return c.Answer(&tele.QueryResponse{
		Results:    results,
		CacheTime:  inlineCacheSeconds,
		NextOffset: search.NextOffset(offset, len(hits), a.cfg.Bot.InlinePageSize),
		IsPersonal: true,
	})
}
