package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"stickerdex/core/logger"
	"stickerdex/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// outbox is the queue SendText drains through. The runtime installs it
// once the dispatcher exists and clears it on shutdown; with no outbox
// sends run inline.
var outbox atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs or clears the outbox.
func SetDispatcher(d *sender.Dispatcher) {
	outbox.Store(d)
}

// SendText answers the update with plain text, no parse mode. Replies
// tolerate queue latency, so they ride the dispatcher when one is
// installed; a full or closing queue degrades to an inline send so the
// user still gets the message.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	inline := func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	}

	d := outbox.Load()
	if d == nil {
		return inline()
	}

	ctx := BuildContext(c)
	err := d.Enqueue(ctx, "send.text", "sendMessage", inline)
	if err == nil {
		return nil
	}
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", "send.text"),
			slog.String("endpoint", "sendMessage"),
			slog.String("err", err.Error()),
		)
		return inline()
	}
	return err
}
