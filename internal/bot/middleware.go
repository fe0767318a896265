package bot

import (
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	tele "gopkg.in/telebot.v4"

	"stickerdex/core/logger"
	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/internal/models"
)

// userMiddleware keeps the sender's row fresh on every update and drops
// banned users before any handler runs. The resolved user is stashed on
// the context so handlers get it without a second lookup.
func (a *App) userMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || sender.IsBot {
			return next(c)
		}

		ctx := tghelpers.BuildContext(c)
		user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
		if err != nil {
			logger.TG.Error("user lookup failed",
				slog.String("event", "tg.user"),
				slog.Int64("user_id", sender.ID),
				slog.String("err", err.Error()),
			)
			sentry.CaptureException(err)
			return nil
		}

		if user.Banned {
			// Commands get an answer; everything else drops quietly.
			if strings.HasPrefix(strings.TrimSpace(c.Text()), "/") {
				_ = c.Send(a.userMsgs(c).Banned())
			}
			logger.TG.Debug("update from banned user dropped",
				slog.String("event", "tg.user"),
				slog.Int64("user_id", user.ID),
			)
			return nil
		}
		return next(c)
	}
}
