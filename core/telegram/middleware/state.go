package middleware

import (
	"log/slog"

	"stickerdex/core/logger"
	tghelpers "stickerdex/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// StateGetter is the slice of the FSM manager the gate needs.
type StateGetter interface {
	GetState(userID int64) string
}

// State gates a handler on the sender holding the expected FSM state.
// Updates in any other state are swallowed so a stray answer cannot
// fire a prompt handler it was not meant for.
func State(mgr StateGetter, expected string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			current := mgr.GetState(sender.ID)
			matched := current == expected

			ctx := tghelpers.BuildContext(c)
			event := "fsm.skip"
			if matched {
				event = "fsm.match"
			}
			logger.TG.LogAttrs(ctx, slog.LevelDebug, event,
				slog.Int64("user_id", sender.ID),
				slog.String("state", current),
				slog.String("expected", expected),
				slog.String("rid", logger.RIDFrom(ctx)),
			)

			if !matched {
				return nil
			}
			return next(c)
		}
	}
}
