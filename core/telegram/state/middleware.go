package state

import tele "gopkg.in/telebot.v4"

const sessionKey = "fsm_session"

// WithSession stashes the sender's session on the telebot context so
// handlers can inspect pending-prompt data without another lookup.
// Updates without a sender pass through untouched.
func WithSession(mgr Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if sender := c.Sender(); sender != nil {
				c.Set(sessionKey, mgr.Get(sender.ID))
			}
			return next(c)
		}
	}
}

// SessionFrom returns the session stashed by WithSession, or nil when the
// update carried no sender.
func SessionFrom(c tele.Context) *Session {
	if s, ok := c.Get(sessionKey).(*Session); ok {
		return s
	}
	return nil
}
