package middleware

import tele "gopkg.in/telebot.v4"

// countingContext wraps tele.Context so the handler summary can report
// how many messages a handler produced and whether any carried a
// keyboard.
type countingContext struct{ tele.Context }

func (m countingContext) counted(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	n, _ := m.Get("messages").(int)
	m.Set("messages", n+1)
	if hasKeyboard(opts) {
		m.Set("kb", true)
	}
	return nil
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	return m.counted(m.Context.Send(what, opts...), opts)
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	return m.counted(m.Context.Reply(what, opts...), opts)
}

// Edits count as responses too; the tag workflow mostly edits one
// message in place instead of sending new ones.
func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	return m.counted(m.Context.Edit(what, opts...), opts)
}

func (m countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return m.counted(m.Context.EditOrSend(what, opts...), opts)
}

func (m countingContext) EditOrReply(what interface{}, opts ...interface{}) error {
	return m.counted(m.Context.EditOrReply(what, opts...), opts)
}

// MessageMetricsMiddleware swaps in the counting context and zeroes the
// counters for each update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("messages", 0)
		c.Set("kb", false)
		return next(countingContext{Context: c})
	}
}

// GetCounters reads the per-update message count and keyboard flag.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get("messages").(int)
	kb, _ := c.Get("kb").(bool)
	return msgs, kb
}
